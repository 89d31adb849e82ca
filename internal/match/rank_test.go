package match

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"parse", "http", "request"}, camelTokens("parseHTTPRequest"))
	assert.Equal(t, []string{"user", "serv"}, camelTokens("UserServ"))
	assert.Nil(t, camelTokens("service"))
	assert.Equal(t, []string{"load", "config", "file"}, snakeTokens("load_config-file"))
	assert.Nil(t, snakeTokens("loadConfig"))
}

func TestFeatures(t *testing.T) {
	assert.InDelta(t, 0.5, prefixBonus("user", "username"), 1e-9)
	// common prefix "user" of "userserv" and "userdata": half of 4/8
	assert.InDelta(t, 0.25, prefixBonus("userserv", "userdata"), 1e-9)
	assert.Equal(t, 0.0, prefixBonus("x", "user"))

	assert.InDelta(t, 0.5, lengthPenalty("user", "username"), 1e-9)
	assert.Equal(t, 0.0, lengthPenalty("", ""))

	assert.Equal(t, 1.0, pathProximity("user", "src/models/user.go", false))
	assert.Equal(t, 0.5, pathProximity("models", "src/models/user.go", false))
	assert.Equal(t, 0.0, pathProximity("billing", "src/models/user.go", false))
	assert.Equal(t, 1.0, pathProximity("user", "src/models/User.go", true))

	assert.Equal(t, 1.0, tokenShare([]string{"connect"}, []string{"connection"}))
	assert.Equal(t, 1.0, tokenShare([]string{"connecting"}, []string{"connected"}))
	assert.Equal(t, 0.5, tokenShare([]string{"user", "serv"}, []string{"user", "data"}))

	assert.Equal(t, 1.0, fuzzySimilarity("same", "same"))
	assert.Equal(t, 0.0, fuzzySimilarity("", "x"))
}

func TestFuzzyRankingPrefersCloserName(t *testing.T) {
	w := DefaultWeights()
	score := func(h string) float64 {
		n := "userserv"
		return rank(w, fuzzySimilarity(n, lower(h)), "UserServ", h, "app/main.go", true).Final
	}
	assert.Greater(t, score("UserService"), score("UserData"))
	assert.Greater(t, score("UserData"), score("Service"))
}

func TestRankBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	words := []string{"User", "Service", "get", "Data", "load_config", "HTTP", "x", "Repository", "_", "save"}
	pick := func() string {
		s := ""
		for i := rng.Intn(4); i >= 0; i-- {
			s += words[rng.Intn(len(words))]
		}
		return s
	}
	heavy := Weights{Prefix: 2, CamelCase: 2, SnakeCase: 2, Path: 2, Length: 3}
	for i := 0; i < 500; i++ {
		needle, hay := pick(), pick()
		for _, w := range []Weights{DefaultWeights(), heavy} {
			b := rank(w, fuzzySimilarity(lower(needle), lower(hay)), needle, hay, "pkg/"+hay+".go", i%2 == 0)
			for name, f := range map[string]float64{
				"base": b.BaseSimilarity, "prefix": b.PrefixBonus, "camel": b.CamelCaseBonus,
				"snake": b.SnakeCaseBonus, "path": b.PathProximity, "length": b.LengthPenalty, "final": b.Final,
			} {
				assert.GreaterOrEqual(t, f, 0.0, "%s for %q/%q", name, needle, hay)
				assert.LessOrEqual(t, f, 1.0, "%s for %q/%q", name, needle, hay)
			}
		}
	}
}

func lower(s string) string { return strings.ToLower(s) }
