package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
)

func sampleVerdict(status model.SubmissionStatus) model.SubmissionVerdict {
	out := "3\n"
	return model.SubmissionVerdict{
		VerdictSummary: model.VerdictSummary{
			Status:      status,
			Verdict:     "Accepted",
			Score:       100,
			PassedCount: 2,
			TotalCount:  2,
			TotalTimeMs: 24,
			MaxMemoryKB: 2048,
		},
		Cases: []model.TestCaseExecution{
			{TestCaseID: "a", Input: "1 2", ExpectedOutput: "3", ActualOutput: &out, TimeMs: 12, MemoryKB: 2048, Status: model.CasePassed},
			{TestCaseID: "b", Input: "2 1", ExpectedOutput: "3", ActualOutput: &out, TimeMs: 12, MemoryKB: 1024, Status: model.CasePassed},
		},
	}
}

func TestCaseCodecCompressesAndRestores(t *testing.T) {
	cases := sampleVerdict(model.SubmissionAccepted).Cases
	blob, err := encodeCases(cases)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeCases(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1].MemoryKB != 1024 || got[0].ActualOutput == nil || *got[0].ActualOutput != "3\n" {
		t.Fatalf("unexpected cases: %+v", got)
	}
	if empty, err := decodeCases(nil); err != nil || empty != nil {
		t.Fatalf("expected nil cases for empty blob, got %v %v", empty, err)
	}
	if _, err := decodeCases([]byte("not zstd")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestVerdictRepositorySaveBumpsCountersOnInsert(t *testing.T) {
	fdb := &fakeDB{affected: []int64{1, 1}}
	repo := NewVerdictRepository(fdb)
	rec := VerdictRecord{
		SubmissionID: "s-1",
		ProblemID:    7,
		UserID:       "u-1",
		LanguageID:   71,
		Verdict:      sampleVerdict(model.SubmissionAccepted),
		ReceivedAt:   time.Unix(100, 0),
		FinishedAt:   time.Unix(160, 0),
	}
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(fdb.execs) != 2 {
		t.Fatalf("expected verdict and stats statements, got %d", len(fdb.execs))
	}
	if !strings.Contains(fdb.execs[1].query, "problem_stats") {
		t.Fatalf("second statement should bump problem stats: %s", fdb.execs[1].query)
	}
	if accepted := fdb.execs[1].args[1]; accepted != 1 {
		t.Fatalf("expected accepted=1, got %v", accepted)
	}
	if finished := fdb.execs[0].args[16]; finished != int64(160) {
		t.Fatalf("expected finished_at 160, got %v", finished)
	}
	if fdb.committed != 1 {
		t.Fatalf("expected commit")
	}
}

func TestVerdictRepositorySaveSkipsCountersOnUpdate(t *testing.T) {
	fdb := &fakeDB{affected: []int64{2}}
	repo := NewVerdictRepository(fdb)
	rec := VerdictRecord{SubmissionID: "s-1", ProblemID: 7, Verdict: sampleVerdict(model.SubmissionRejected)}
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(fdb.execs) != 1 {
		t.Fatalf("rejudge must not bump counters, got %d statements", len(fdb.execs))
	}
}

func TestVerdictRepositorySaveValidation(t *testing.T) {
	repo := NewVerdictRepository(&fakeDB{})
	if err := repo.Save(context.Background(), VerdictRecord{ProblemID: 1}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if err := repo.Save(context.Background(), VerdictRecord{SubmissionID: "s"}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestVerdictRepositoryGetFinalStatus(t *testing.T) {
	v := sampleVerdict(model.SubmissionAccepted)
	blob, err := encodeCases(v.Cases)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	fdb := &fakeDB{row: fakeRow{values: []interface{}{
		"s-1", int64(7), "u-1", "room-1",
		"accepted", "Accepted", 100, 2, 2,
		24.0, int64(2048), 0, blob, []byte(`{"runtime":87.5}`),
		int64(100), int64(160),
	}}}
	repo := NewVerdictRepository(fdb)

	got, err := repo.GetFinalStatus(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusFinished || got.Result != model.SubmissionAccepted || got.Score != 100 {
		t.Fatalf("unexpected status: %+v", got)
	}
	if len(got.Cases) != 2 || got.Progress.DoneTests != 2 || got.Timestamps.FinishedAt != 160 {
		t.Fatalf("unexpected details: %+v", got)
	}
	if got.Percentiles == nil || got.Percentiles.Runtime == nil || *got.Percentiles.Runtime != 87.5 || got.Percentiles.Memory != nil {
		t.Fatalf("unexpected percentiles: %+v", got.Percentiles)
	}
}

func TestVerdictRepositoryGetFinalStatusNotFound(t *testing.T) {
	repo := NewVerdictRepository(&fakeDB{row: fakeRow{err: errNoRows}})
	_, err := repo.GetFinalStatus(context.Background(), "missing")
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
}

func TestVerdictRepositoryAcceptance(t *testing.T) {
	repo := NewVerdictRepository(&fakeDB{row: fakeRow{values: []interface{}{int64(3), int64(1)}}})
	stats, err := repo.Acceptance(context.Background(), 7)
	if err != nil {
		t.Fatalf("acceptance: %v", err)
	}
	if stats.Submissions != 3 || stats.Accepted != 1 || stats.Rate != 33.33 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	repo = NewVerdictRepository(&fakeDB{row: fakeRow{err: errNoRows}})
	stats, err = repo.Acceptance(context.Background(), 8)
	if err != nil {
		t.Fatalf("acceptance: %v", err)
	}
	if stats.ProblemID != 8 || stats.Submissions != 0 || stats.Rate != 0 {
		t.Fatalf("unexpected empty stats: %+v", stats)
	}
}
