package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierBuilder(t *testing.T) {
	b := IdentifierBuilder{Namespace: "ns", Key: "upload"}
	assert.Equal(t, "ns:upload:user:vova", b.Build("user", "vova"))
	assert.Equal(t, "ns:upload", b.Build("", ""))
	assert.Equal(t, "ns:upload", b.Scope())
	assert.Equal(t, "lock:ns:upload", b.LockKey())

	bare := IdentifierBuilder{Key: "upload"}
	assert.Equal(t, "upload:user:vova", bare.Build("user", "vova"))
	assert.Equal(t, "lock:upload", bare.LockKey())
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "a:c", JoinNonEmpty(":", "a", "", "c"))
	assert.Equal(t, "", JoinNonEmpty(":", "", ""))
}

func TestResolve_AggregatesSameIdentifier(t *testing.T) {
	b := IdentifierBuilder{Key: "k"}
	values := SelectorValues{"user": "vova"}

	for _, rule := range []Rule{
		Or(MustParseRule("user:10/s"), MustParseRule("user:100/h")),
		Or(MustParseRule("user:100/h"), MustParseRule("user:10/s")),
	} {
		windows, err := Resolve(b, rule, values)
		require.NoError(t, err)
		require.Len(t, windows, 1)
		assert.Equal(t, Window{MaxRequests: 100, MaxSpan: time.Hour}, windows["k:user:vova"])
	}
}

func TestResolve_MaxFieldsAreIndependent(t *testing.T) {
	// 10 requests from 10/5s, 60 seconds from 1/m and 5/m.
	windows, err := Resolve(IdentifierBuilder{Key: "vova"}, MustParseRule("And(5/m, Or(10/5s, 1/m))"), nil)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, Window{MaxRequests: 10, MaxSpan: time.Minute}, windows["vova"])
}

func TestResolve_EmptySelectorValueIsIgnored(t *testing.T) {
	rule := MustParseRule("Or(user:10/15s, apikey:1/m)")
	windows, err := Resolve(IdentifierBuilder{Key: "upload"}, rule, SelectorValues{"user": "vova", "apikey": ""})
	require.NoError(t, err)

	require.Len(t, windows, 1)
	assert.Equal(t, Window{MaxRequests: 10, MaxSpan: 15 * time.Second}, windows["upload:user:vova"])
}

func TestResolve_MultipleSelectors(t *testing.T) {
	rule := MustParseRule("Or(user:10/15s, apikey:1/m)")
	windows, err := Resolve(IdentifierBuilder{Namespace: "ns", Key: "k"}, rule, SelectorValues{"user": "vova", "apikey": "my_api"})
	require.NoError(t, err)

	assert.Equal(t, map[string]Window{
		"ns:k:user:vova":     {MaxRequests: 10, MaxSpan: 15 * time.Second},
		"ns:k:apikey:my_api": {MaxRequests: 1, MaxSpan: time.Minute},
	}, windows)
}

func TestResolve_MissingSelector(t *testing.T) {
	_, err := Resolve(IdentifierBuilder{Key: "k"}, MustParseRule("Or(10/s, user:1/s)"), SelectorValues{})
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "selector", cfgErr.Field)
	assert.True(t, IsConfigurationError(err))
}

func TestResolve_InvalidTree(t *testing.T) {
	_, err := Resolve(IdentifierBuilder{Key: "k"}, Or(), nil)
	assert.True(t, IsConfigurationError(err))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "configuration", ErrorKind(NewConfigurationError("rule", "bad")))
	assert.Equal(t, "lock_timeout", ErrorKind(ErrLockTimeout))
	assert.Equal(t, "store_unavailable", ErrorKind(errors.Join(ErrStoreUnavailable, errors.New("boom"))))
	assert.Equal(t, "blocked", ErrorKind(&BlockedError{Decision: Decision{Key: "k"}}))
	assert.Equal(t, "unknown", ErrorKind(errors.New("boom")))
	assert.Equal(t, "rate limit exceeded for k", (&BlockedError{Decision: Decision{Key: "k"}}).Error())
}
