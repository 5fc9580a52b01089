package sqlite

// Schema creates the catalogue tables. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS catalogue_categories (
	id         TEXT NOT NULL,
	kind       TEXT NOT NULL CHECK (kind IN ('material', 'texture')),
	name_en    TEXT NOT NULL DEFAULT '',
	name_he    TEXT NOT NULL DEFAULT '',
	parent_id  TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS catalogue_entities (
	id                TEXT PRIMARY KEY,
	kind              TEXT NOT NULL CHECK (kind IN ('material', 'texture')),
	name_en           TEXT NOT NULL DEFAULT '',
	name_he           TEXT NOT NULL DEFAULT '',
	category_id       TEXT NOT NULL,
	finish            TEXT NOT NULL DEFAULT '[]',
	colors            TEXT NOT NULL DEFAULT '[]',
	generation_status TEXT NOT NULL DEFAULT 'PENDING',
	is_abstract       INTEGER NOT NULL DEFAULT 0,
	thumbnail_url     TEXT NOT NULL DEFAULT '',
	image_urls        TEXT NOT NULL DEFAULT '[]',
	usage_count       INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_catalogue_entities_kind_en ON catalogue_entities(kind, name_en);
CREATE INDEX IF NOT EXISTS idx_catalogue_entities_kind_he ON catalogue_entities(kind, name_he);
CREATE INDEX IF NOT EXISTS idx_catalogue_entities_usage ON catalogue_entities(kind, usage_count DESC);

CREATE TABLE IF NOT EXISTS style_element_links (
	style_id   TEXT NOT NULL,
	entity_id  TEXT NOT NULL REFERENCES catalogue_entities(id),
	kind       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (style_id, entity_id)
);
`
