package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisallow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "wildcard block only",
			body: "User-agent: *\nDisallow: /admin\nDisallow: /private/\n",
			want: []string{"/admin", "/private/"},
		},
		{
			name: "named agent block ignored",
			body: "User-agent: Googlebot\nDisallow: /google-only\n\nUser-agent: *\nDisallow: /members\n",
			want: []string{"/members"},
		},
		{
			name: "empty disallow allows everything",
			body: "User-agent: *\nDisallow:\n",
			want: nil,
		},
		{
			name: "comments and blank lines skipped",
			body: "# politeness\n\nUser-agent: *\n# admin area\nDisallow: /wp-admin\n",
			want: []string{"/wp-admin"},
		},
		{
			name: "case insensitive keys",
			body: "USER-AGENT: *\nDISALLOW: /Search\n",
			want: []string{"/Search"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseDisallow(tt.body))
		})
	}
}

func TestAllowedHonorsPrefixes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/robots.txt", r.URL.Path)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /members\nDisallow: /search/\n"))
	}))
	defer srv.Close()

	c := NewCache(srv.Client(), "test-bot")
	ctx := context.Background()

	assert.True(t, c.Allowed(ctx, srv.URL+"/competitions/win-a-car"))
	assert.False(t, c.Allowed(ctx, srv.URL+"/members/profile"))
	assert.False(t, c.Allowed(ctx, srv.URL+"/search/q=prize"))
	assert.True(t, c.Allowed(ctx, srv.URL))
}

func TestMissingRulesFileUnrestricted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewCache(srv.Client(), "test-bot")
	assert.True(t, c.Allowed(context.Background(), srv.URL+"/anything/at/all"))
}

func TestFetchFailureBlocksOrigin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCache(srv.Client(), "test-bot")
	assert.False(t, c.Allowed(context.Background(), srv.URL+"/competitions"))
	assert.False(t, c.Allowed(context.Background(), srv.URL+"/"))
}

func TestRulesFetchedOncePerOrigin(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /admin\n"))
	}))
	defer srv.Close()

	c := NewCache(srv.Client(), "test-bot")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Allowed(ctx, srv.URL+"/page")
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestMalformedURLBlocked(t *testing.T) {
	t.Parallel()

	c := NewCache(nil, "test-bot")
	assert.False(t, c.Allowed(context.Background(), "::not-a-url"))
	assert.False(t, c.Allowed(context.Background(), "/relative/only"))
}
