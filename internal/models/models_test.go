package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestHiverRequestActivePairIsUnique(t *testing.T) {
	s, err := schema.Parse(&HiverRequest{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	idx, ok := s.ParseIndexes()["idx_hiver_request_active_pair"]
	require.True(t, ok)
	require.Equal(t, "UNIQUE", idx.Class)
	require.Equal(t, "status <> 'DECLINED'", idx.Where)

	var columns []string
	for _, f := range idx.Fields {
		columns = append(columns, f.DBName)
	}
	require.Equal(t, []string{"sender_guid", "receiver_guid"}, columns)
}
