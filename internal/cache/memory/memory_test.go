package memory

import (
	"sync"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("hit for missing key")
	}

	c.Set("k", []byte("v"), time.Minute)
	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("Get = %q ok=%v", v, ok)
	}

	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("key survived delete")
	}
}

func TestTakeIsSingleUse(t *testing.T) {
	c := New(time.Minute)
	c.Set("nonce", []byte("1"), time.Minute)

	if v, ok := c.Take("nonce"); !ok || string(v) != "1" {
		t.Fatalf("first Take = %q ok=%v", v, ok)
	}
	if _, ok := c.Take("nonce"); ok {
		t.Fatal("second Take succeeded")
	}
}

func TestTakeExactlyOnceUnderConcurrency(t *testing.T) {
	c := New(time.Minute)
	c.Set("nonce", []byte("1"), time.Minute)

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := c.Take("nonce"); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("%d goroutines took the nonce, want exactly 1", n)
	}
}

func TestExpiry(t *testing.T) {
	c := New(time.Minute)
	c.Set("short", []byte("x"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Fatal("expired key still readable")
	}
}
