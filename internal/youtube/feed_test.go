package youtube

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
 <title>Test Channel</title>
 <entry>
  <id>yt:video:older</id>
  <yt:videoId>older</yt:videoId>
  <title>Older</title>
  <published>2026-03-01T10:00:00+00:00</published>
 </entry>
 <entry>
  <id>yt:video:newest</id>
  <yt:videoId>newest</yt:videoId>
  <title>Newest</title>
  <published>2026-03-08T10:00:00+00:00</published>
 </entry>
 <entry>
  <id>yt:video:middle</id>
  <title>Middle</title>
  <published>2026-03-05T10:00:00+00:00</published>
 </entry>
 <entry>
  <id>urn:other</id>
  <title>Not a video</title>
  <published>2026-03-09T10:00:00+00:00</published>
 </entry>
</feed>`

func TestFeedDiscoverer_RecentVideoIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("channel_id"); got != "UCabc" {
			t.Errorf("channel_id = %s, want UCabc", got)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, testAtomFeed)
	}))
	defer server.Close()

	var buf bytes.Buffer
	d := NewFeedDiscoverer(server.Client(), newTestLogger(&buf))
	d.endpoint = server.URL

	ids, err := d.RecentVideoIDs(context.Background(), "UCabc", 2)
	if err != nil {
		t.Fatalf("RecentVideoIDs がエラーを返した: %v", err)
	}
	if got := strings.Join(ids, ","); got != "newest,middle" {
		t.Errorf("ids = %s, want newest,middle", got)
	}
}

func TestFeedDiscoverer_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	d := NewFeedDiscoverer(server.Client(), newTestLogger(&buf))
	d.endpoint = server.URL

	if _, err := d.RecentVideoIDs(context.Background(), "UCabc", 5); err == nil {
		t.Error("404はエラーになるべき")
	}
}
