package memory

import (
	"context"
	"testing"
	"time"

	"aula-quiz-service/internal/domain"
)

func TestTestRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		TestLoader: NewStaticTestStore(map[string]domain.Test{
			"test-1": sampleTest(),
		}),
	}
	repo := NewTestRepository(loader, time.Minute)

	if _, err := repo.GetTest(context.Background(), "test-1"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetTest(context.Background(), "test-1"); err != nil {
		t.Fatalf("get test 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestStaticTestStoreRoundTrip(t *testing.T) {
	store := NewStaticTestStore(nil)
	ctx := context.Background()

	if _, err := store.LoadTest(ctx, "missing"); err != domain.ErrTestNotFound {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}

	test := sampleTest()
	if err := store.SaveTest(ctx, test); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := store.LoadTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Title != test.Title || len(loaded.Questions) != 1 {
		t.Fatalf("unexpected test: %+v", loaded)
	}
}

type countingLoader struct {
	TestLoader
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.Test, error) {
	l.calls++
	return l.TestLoader.LoadTest(ctx, testID)
}

func sampleTest() domain.Test {
	return domain.Test{
		ID:    "test-1",
		Title: "Demo Test",
		Questions: []domain.Question{
			{
				ID:        "q1",
				Statement: "¿2+2?",
				Options: map[domain.OptionKey]string{
					domain.OptionA: "3", domain.OptionB: "4", domain.OptionC: "5", domain.OptionD: "22",
				},
				Correct:     domain.OptionB,
				Competition: true,
			},
		},
	}
}
