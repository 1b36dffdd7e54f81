package taiga

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_ValidGet(t *testing.T) {
	d, err := NewRequest(http.MethodGet, "/projects").
		Query("member", "42").
		Build()
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, d.Method())
	assert.Equal(t, "/projects", d.Path())
	assert.False(t, d.IsMutation())
	assert.True(t, d.RetrySafe())
}

func TestBuilder_RejectsBadMethod(t *testing.T) {
	_, err := NewRequest("FETCH", "/projects").Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsRelativePath(t *testing.T) {
	_, err := NewRequest(http.MethodGet, "projects").Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsGetWithBody(t *testing.T) {
	_, err := NewRequest(http.MethodGet, "/projects").
		Body([]byte(`{}`)).
		Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsGetWithInvalidation(t *testing.T) {
	_, err := NewRequest(http.MethodGet, "/projects").
		Invalidates(GetKey("/projects")).
		Build()
	assert.Error(t, err)
}

func TestBuilder_DropsEmptyQueryValues(t *testing.T) {
	d, err := NewRequest(http.MethodGet, "/issues").
		Query("status", "").
		Query("severity", "3").
		Build()
	require.NoError(t, err)

	q := d.Query()
	require.Len(t, q, 1)
	assert.Equal(t, "severity", q[0].Key)
}

func TestCacheKey_QueryOrderIndependent(t *testing.T) {
	a, err := NewRequest(http.MethodGet, "/userstories").
		Query("project", "7").
		Query("milestone", "3").
		Build()
	require.NoError(t, err)

	b, err := NewRequest(http.MethodGet, "/userstories").
		Query("milestone", "3").
		Query("project", "7").
		Build()
	require.NoError(t, err)

	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.Equal(t, "GET /userstories?milestone=3&project=7", a.CacheKey())
}

func TestCacheKey_DistinguishesValues(t *testing.T) {
	a := NewRequest(http.MethodGet, "/tasks").Query("project", "1").MustBuild()
	b := NewRequest(http.MethodGet, "/tasks").Query("project", "2").MustBuild()
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
}

func TestGetKey_IsPrefixOfListAndDetailKeys(t *testing.T) {
	list := NewRequest(http.MethodGet, "/projects").Query("member", "1").MustBuild()
	detail := NewRequest(http.MethodGet, "/projects/99").MustBuild()

	prefix := GetKey("/projects")
	assert.Contains(t, list.CacheKey(), prefix)
	assert.Contains(t, detail.CacheKey(), prefix)
}

func TestMutation_RetrySafeOptIn(t *testing.T) {
	plain := NewRequest(http.MethodPost, "/tasks").Body([]byte(`{}`)).MustBuild()
	assert.True(t, plain.IsMutation())
	assert.False(t, plain.RetrySafe())

	opted := NewRequest(http.MethodPut, "/tasks/1").
		Body([]byte(`{}`)).
		RetrySafe().
		MustBuild()
	assert.True(t, opted.RetrySafe())
}

func TestDescriptor_Immutable(t *testing.T) {
	body := []byte(`{"subject":"a"}`)
	d := NewRequest(http.MethodPost, "/tasks").Body(body).MustBuild()

	body[0] = 'X'
	assert.Equal(t, byte('{'), d.Body()[0])

	// Returned slices are copies too.
	d.InvalidationPrefixes()
	q := d.Query()
	assert.Empty(t, q)
}
