package scenario

import "testing"

func TestBuiltin_LoadsAndSorts(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	all := c.All()
	if len(all) == 0 {
		t.Fatalf("expected builtin scenarios")
	}
	for i := 1; i < len(all); i++ {
		if productRank(all[i-1].Product) > productRank(all[i].Product) {
			t.Fatalf("scenario %q sorted before %q", all[i-1].ID, all[i].ID)
		}
	}
	if _, ok := c.Get("outlook-not-syncing"); !ok {
		t.Fatalf("expected outlook-not-syncing in catalog")
	}
	if _, ok := c.Get("nope"); ok {
		t.Fatalf("unexpected hit for unknown id")
	}
}

func TestNew_RejectsDuplicateAndEmptyIDs(t *testing.T) {
	if _, err := New([]Scenario{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := New([]Scenario{{Title: "untitled"}}); err == nil {
		t.Fatalf("expected empty id error")
	}
}

func TestCatalog_OrdersByProductThenTitle(t *testing.T) {
	c, err := New([]Scenario{
		{ID: "x", Title: "Zeta", Product: "Unknown"},
		{ID: "e", Title: "Beta", Product: "Exchange"},
		{ID: "t2", Title: "Bravo", Product: "MS Teams"},
		{ID: "t1", Title: "Alpha", Product: "MS Teams"},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var ids []string
	for _, s := range c.All() {
		ids = append(ids, s.ID)
	}
	want := []string{"t1", "t2", "e", "x"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order: got %v want %v", ids, want)
		}
	}
	if s, _ := c.Get("e"); s.Title != "Beta" {
		t.Fatalf("get after sort returned %q", s.Title)
	}
}

func TestCatalog_Search(t *testing.T) {
	c, _ := New([]Scenario{
		{ID: "a", Title: "Outlook offline", Product: "Exchange", Customer: Customer{Name: "Dana"}},
		{ID: "b", Title: "Mic broken", Product: "MS Teams", Customer: Customer{Name: "Marcus"}},
	})
	cases := []struct {
		q    string
		want int
	}{
		{"", 2},
		{"  ", 2},
		{"OUTLOOK", 1},
		{"teams", 1},
		{"marc", 1},
		{"sharepoint", 0},
	}
	for _, tc := range cases {
		if got := len(c.Search(tc.q)); got != tc.want {
			t.Fatalf("search %q: got %d want %d", tc.q, got, tc.want)
		}
	}
}

func TestScenario_Checklist(t *testing.T) {
	s := Scenario{SummaryHint: "**Verify:** the mailbox |  | **Check:**offline mode| plain item "}
	got := s.Checklist()
	want := []ChecklistItem{
		{Full: "**Verify:** the mailbox", Bold: "Verify", Regular: "the mailbox"},
		{Full: "**Check:**offline mode", Bold: "Check", Regular: "offline mode"},
		{Full: "plain item", Bold: "plain item", Regular: ""},
	}
	if len(got) != len(want) {
		t.Fatalf("len: got %d want %d (%+v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("item %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestScenario_SeedAndOpeningLine(t *testing.T) {
	s := Scenario{
		OpeningTemplates: []string{"Hi, {{AGENT_NAME}} here.", "This is {{AGENT_NAME}}."},
		Path:             []Step{{Customer: "My mail is gone."}},
	}
	if s.Seed() != "My mail is gone." {
		t.Fatalf("seed: %q", s.Seed())
	}
	if got := s.OpeningLine("Alex", func(n int) int { return 1 }); got != "This is Alex." {
		t.Fatalf("opening line: %q", got)
	}
	if got := s.OpeningLine("Alex", func(n int) int { return 7 }); got != "Hi, Alex here." {
		t.Fatalf("out of range pick should fall back to first template: %q", got)
	}
	empty := Scenario{}
	if empty.Seed() != DefaultSeed {
		t.Fatalf("empty seed: %q", empty.Seed())
	}
	if empty.OpeningLine("Alex", nil) != "" {
		t.Fatalf("expected empty opening line")
	}
}
