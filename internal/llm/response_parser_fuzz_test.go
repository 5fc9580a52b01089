package llm

import "testing"

func FuzzParseMatchResponse(f *testing.F) {
	f.Add(`{"action":"link","matchedEntityId":"m1","confidence":0.9}`)
	f.Add(`{"action":"create","newEntitySpec":{"name":{"en":"Oak","he":"אלון"}},"reasoning":"new"}`)
	f.Add(``)
	f.Add(`not json at all`)
	f.Add("```json\n{\"action\":\"link\"}\n```")
	f.Add(`{{{`)
	f.Add(`{"action":null,"newEntitySpec":null}`)
	f.Add(`{"action":"create","newEntitySpec":{"name":{"en":"x"},"finish":[null,"a"]}}`)
	f.Add(`Text before {"action":"link","matchedEntityId":"\"quoted\""} text after`)

	f.Fuzz(func(t *testing.T, input string) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("ParseMatchResponse panicked on input %q: %v", input, r)
			}
		}()
		resp, err := ParseMatchResponse(input)
		if err == nil && resp.Action != ActionLink && resp.Action != ActionCreate {
			t.Errorf("accepted unknown action %q", resp.Action)
		}
	})
}
