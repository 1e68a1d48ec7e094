package plugin

import (
	"sync"
	"testing"
)

func TestStoreReplaceIsWholesale(t *testing.T) {
	s := NewStore()
	if nodes := s.Load().RedisNodes; nodes != nil {
		t.Fatalf("new store should be empty, got %v", nodes)
	}

	s.Replace(Conf{RedisNodes: []string{"a:1", "b:2"}})
	s.Replace(Conf{RedisNodes: []string{"c:3"}})
	if got := s.Load().RedisNodes; len(got) != 1 || got[0] != "c:3" {
		t.Fatalf("replace should not merge, got %v", got)
	}
}

func TestStoreLoadReturnsCopy(t *testing.T) {
	s := NewStore()
	input := Conf{RedisNodes: []string{"a:1"}}
	s.Replace(input)
	input.RedisNodes[0] = "mutated:1"

	loaded := s.Load()
	loaded.RedisNodes[0] = "mutated:2"
	if got := s.Load().RedisNodes[0]; got != "a:1" {
		t.Fatalf("stored configuration must not be shared, got %s", got)
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	s := NewStore()
	full := Conf{RedisNodes: []string{"a:1", "b:2", "c:3"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if n := len(s.Load().RedisNodes); n != 0 && n != 3 {
					t.Errorf("observed partial configuration with %d nodes", n)
					return
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		s.Replace(full)
		s.Replace(Conf{})
	}
	wg.Wait()
}
