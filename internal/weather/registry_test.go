package weather

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter ProviderType

func (s stubAdapter) Type() ProviderType { return ProviderType(s) }

func (s stubAdapter) FetchReading(context.Context, Station, *FetchContext) (Measurement, error) {
	return Measurement{}, ErrNoData
}

func TestRegistryGroupTypes(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []ProviderType{TypeHarvest, TypeMetservice, TypeHolfuy, TypeWU, TypeCWU} {
		r.RegisterReading(stubAdapter(typ))
	}

	got, err := r.GroupTypes(GroupHarvest)
	require.NoError(t, err)
	assert.Equal(t, []ProviderType{TypeHarvest}, got)

	got, err = r.GroupTypes(GroupRest)
	require.NoError(t, err)
	assert.Equal(t, []ProviderType{TypeCWU, TypeHolfuy, TypeWU}, got)

	got, err = r.GroupTypes(GroupAll)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.GroupTypes("everything")
	assert.Error(t, err)

	_, ok := r.Reading(TypeTempest)
	assert.False(t, ok)
}
