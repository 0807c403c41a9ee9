package session

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/varsilias/askdesk/pkg/types"
)

type listingStore interface {
	Store
	Lister
}

func storesUnderTest(t *testing.T) map[string]listingStore {
	t.Helper()
	bs, err := NewBoltStore(filepath.Join(t.TempDir(), "conv", "sessions.bolt"))
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = bs.Close() })
	return map[string]listingStore{
		"memory": NewMemoryStore(),
		"bolt":   bs,
	}
}

func msg(role types.Role, content string) types.Message {
	return types.Message{Role: role, Content: content, Timestamp: time.Now()}
}

func TestStoreAppendGetClear(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Append("s1", msg(types.RoleUser, "hello there")); err != nil {
				t.Fatalf("Append: %v", err)
			}
			if err := s.Append("s1", msg(types.RoleAssistant, "hi")); err != nil {
				t.Fatalf("Append: %v", err)
			}
			_ = s.Append("s2", msg(types.RoleUser, "other"))

			got, err := s.Get("s1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got) != 2 || got[0].Content != "hello there" || got[1].Role != types.RoleAssistant {
				t.Fatalf("history = %+v", got)
			}

			if err := s.Clear("s1"); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			got, _ = s.Get("s1")
			if len(got) != 0 {
				t.Fatalf("history after clear = %+v", got)
			}
			if other, _ := s.Get("s2"); len(other) != 1 {
				t.Fatalf("clear leaked into s2: %+v", other)
			}
		})
	}
}

func TestStoreUnknownSessionIsEmpty(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Get("nope")
			if err != nil || got == nil || len(got) != 0 {
				t.Fatalf("Get(nope) = %v, %v", got, err)
			}
		})
	}
}

func TestStoreRejectsEmptyID(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Append("", msg(types.RoleUser, "x")); !errors.Is(err, ErrEmptySessionID) {
				t.Fatalf("Append err = %v", err)
			}
			if err := s.Touch(""); !errors.Is(err, ErrEmptySessionID) {
				t.Fatalf("Touch err = %v", err)
			}
		})
	}
}

func TestStoreListAndTouch(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Touch("fresh"); err != nil {
				t.Fatalf("Touch: %v", err)
			}
			long := strings.Repeat("word ", 30)
			_ = s.Append("busy", msg(types.RoleUser, long))

			list, err := s.List()
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			byID := map[string]Summary{}
			for _, sum := range list {
				byID[sum.ID] = sum
			}
			if _, ok := byID["fresh"]; !ok {
				t.Fatalf("touched session missing: %+v", list)
			}
			busy, ok := byID["busy"]
			if !ok || busy.Title == "" || len([]rune(busy.Title)) > 17 {
				t.Fatalf("busy summary = %+v", busy)
			}
			if busy.Updated.IsZero() {
				t.Fatal("updated time not recorded")
			}
		})
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.bolt")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Append("keep", msg(types.RoleUser, "persist me"))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, _ := s.Get("keep")
	if len(got) != 1 || got[0].Content != "persist me" {
		t.Fatalf("history after reopen = %+v", got)
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Append("shared", msg(types.RoleUser, "x"))
		}()
	}
	wg.Wait()
	got, _ := s.Get("shared")
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
}
