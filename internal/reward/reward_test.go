package reward

import "testing"

func TestComputeWinnerPayout(t *testing.T) {
	res := Compute("p1", "p2", 7, 3)
	if res.CrowdEnergy != 100 {
		t.Fatalf("crowd energy: got %d want 100", res.CrowdEnergy)
	}
	if res.WinnerID != "p1" {
		t.Fatalf("winner: got %q want p1", res.WinnerID)
	}
	if res.Player1Hype != 200 {
		t.Fatalf("winner hype: got %d want 200", res.Player1Hype)
	}
	if res.Player2Hype != 75 {
		t.Fatalf("loser hype: got %d want 75", res.Player2Hype)
	}
}

func TestComputeTie(t *testing.T) {
	res := Compute("p1", "p2", 4, 4)
	if res.WinnerID != "" {
		t.Fatalf("expected no winner on tie, got %q", res.WinnerID)
	}
	if res.CrowdEnergy != 80 {
		t.Fatalf("crowd energy: got %d want 80", res.CrowdEnergy)
	}
	if res.Player1Hype != 75 || res.Player2Hype != 75 {
		t.Fatalf("tie hype: got %d/%d want 75/75", res.Player1Hype, res.Player2Hype)
	}
}

func TestComputePlayer2Wins(t *testing.T) {
	res := Compute("p1", "p2", 1, 2)
	if res.WinnerID != "p2" {
		t.Fatalf("winner: got %q want p2", res.WinnerID)
	}
	// 3 votes -> crowd energy 30 -> 50+100+15
	if res.Player2Hype != 165 {
		t.Fatalf("winner hype: got %d want 165", res.Player2Hype)
	}
	if res.Player1Hype != 75 {
		t.Fatalf("loser hype: got %d want 75", res.Player1Hype)
	}
}

func TestCrowdEnergyFloorAndCap(t *testing.T) {
	cases := []struct {
		p1, p2, want int
	}{
		{0, 0, 0},
		{1, 0, 10},
		{5, 4, 90},
		{5, 5, 100},
		{50, 50, 100},
	}
	for _, tc := range cases {
		if got := CrowdEnergy(tc.p1, tc.p2); got != tc.want {
			t.Fatalf("CrowdEnergy(%d,%d): got %d want %d", tc.p1, tc.p2, got, tc.want)
		}
	}
	// odd crowd energy halves with floor semantics: 3 votes -> 30 -> +15
	res := Compute("a", "b", 3, 0)
	if res.Player1Hype != 165 {
		t.Fatalf("floor semantics: got %d want 165", res.Player1Hype)
	}
}

func TestHypeForAndWon(t *testing.T) {
	res := Compute("p1", "p2", 2, 0)
	if res.HypeFor("p1") != res.Player1Hype || res.HypeFor("p2") != res.Player2Hype {
		t.Fatalf("HypeFor mismatch")
	}
	if res.HypeFor("stranger") != 0 {
		t.Fatalf("HypeFor stranger should be 0")
	}
	if !res.Won("p1") || res.Won("p2") {
		t.Fatalf("Won flags wrong")
	}
	tie := Compute("p1", "p2", 0, 0)
	if tie.Won("p1") || tie.Won("p2") {
		t.Fatalf("nobody wins a tie")
	}
}
