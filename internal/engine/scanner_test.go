package engine

import "testing"

// TestScanner_TokenInSingleChunk verifies detection within one chunk.
func TestScanner_TokenInSingleChunk(t *testing.T) {
	s := NewCompletionScanner("DONE_TOKEN")

	if s.Feed("working on it") {
		t.Error("premature detection")
	}
	if !s.Feed("all finished DONE_TOKEN bye") {
		t.Error("expected detection")
	}
	if !s.Found() {
		t.Error("Found should stay true")
	}
}

// TestScanner_TokenSplitAcrossChunks verifies the sentinel matches when the
// stream splits it mid-token.
func TestScanner_TokenSplitAcrossChunks(t *testing.T) {
	s := NewCompletionScanner("DONE_TOKEN")

	if s.Feed("output ends with DONE_T") {
		t.Fatal("partial token must not match")
	}
	if !s.Feed("OKEN and more") {
		t.Fatal("expected split token to match")
	}
}

// TestScanner_ThreeWaySplit verifies a token spread over three chunks.
func TestScanner_ThreeWaySplit(t *testing.T) {
	s := NewCompletionScanner("DONE_TOKEN")

	s.Feed("DONE")
	s.Feed("_TOK")
	if !s.Feed("EN") {
		t.Fatal("expected three-way split token to match")
	}
}

// TestScanner_FoundSticky verifies detection persists across further chunks.
func TestScanner_FoundSticky(t *testing.T) {
	s := NewCompletionScanner("")

	s.Feed(DefaultCompletionToken)
	if !s.Feed("unrelated trailing output") {
		t.Error("detection should be sticky")
	}
}

// TestScanner_NearMissNeverMatches verifies lookalike output does not trip the
// scanner.
func TestScanner_NearMissNeverMatches(t *testing.T) {
	s := NewCompletionScanner("DONE_TOKEN")

	s.Feed("DONE_TOKE")
	s.Feed("X")
	if s.Found() {
		t.Error("near miss matched")
	}
}
