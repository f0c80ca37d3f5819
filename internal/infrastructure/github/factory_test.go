package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_ForRepo_AllowListed(t *testing.T) {
	f := NewFactory("tok", "", []string{"acme/widgets"})

	client, err := f.ForRepo("acme", "widgets")
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestFactory_ForRepo_Denied(t *testing.T) {
	f := NewFactory("tok", "", []string{"acme/widgets"})

	client, err := f.ForRepo("acme", "other")
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestFactory_ForRepo_EmptyListDeniesEverything(t *testing.T) {
	f := NewFactory("tok", "", nil)

	_, err := f.ForRepo("acme", "widgets")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestFactory_ForRepo_RequiresOwnerAndRepo(t *testing.T) {
	f := NewFactory("tok", "", []string{"acme/widgets"})

	_, err := f.ForRepo("", "widgets")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = f.ForRepo("acme", "")
	assert.ErrorIs(t, err, ErrAccessDenied)
}
