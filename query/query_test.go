package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/slotsync/cfg"
)

func TestSlotSync_Build(t *testing.T) {
	queries, err := SlotSync{}.Build(cfg.Default().SlotSync)
	require.NoError(t, err)
	require.Len(t, queries, 1)

	q := queries[0]
	assert.False(t, q.Gate)
	assert.Equal(t, SlotSyncFunction, q.Name)
	assert.Contains(t, q.Text, "SELECT standby_update_logical_slots('master_fdw')")
	assert.Contains(t, q.Text, `FROM "pg_catalog"."pg_extension"`)
	assert.Contains(t, q.Text, `"extname" = 'slot_timelines'`)
}

func TestSlotSync_GatewayIsEscaped(t *testing.T) {
	c := cfg.Default().SlotSync
	c.Gateway = "it's'); DROP TABLE x; --"

	queries, err := SlotSync{}.Build(c)
	require.NoError(t, err)
	assert.Contains(t, queries[0].Text, `standby_update_logical_slots('it''s''); DROP TABLE x; --')`)
}

func TestLauncher_Build(t *testing.T) {
	queries, err := Launcher{}.Build(cfg.Default().Launcher)
	require.NoError(t, err)
	require.Len(t, queries, 2)

	gate, action := queries[0], queries[1]

	assert.True(t, gate.Gate)
	assert.Contains(t, gate.Text, "COUNT(*) > 0")
	assert.Contains(t, gate.Text, `"extname" = 'synchronize_logical_slots'`)
	assert.NotContains(t, gate.Text, "synchronize_logical_slots()")

	assert.False(t, action.Gate)
	assert.Equal(t, SynchronizeFunction, action.Name)
	assert.Contains(t, action.Text, "SELECT synchronize_logical_slots()")
	assert.Contains(t, action.Text, `FROM "pg_catalog"."pg_extension"`)
	assert.Contains(t, action.Text, `"extname" = 'synchronize_logical_slots'`)
}

func TestBuilders_RenderedText(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		config  cfg.WorkerConfiguration
		want    []string
	}{
		{
			name:    "slot sync",
			builder: SlotSync{},
			config:  cfg.Default().SlotSync,
			want: []string{
				`SELECT standby_update_logical_slots('master_fdw') FROM "pg_catalog"."pg_extension" WHERE ("extname" = 'slot_timelines')`,
			},
		},
		{
			name:    "launcher",
			builder: Launcher{},
			config:  cfg.Default().Launcher,
			want: []string{
				`SELECT (COUNT(*) > 0) FROM "pg_catalog"."pg_extension" WHERE ("extname" = 'synchronize_logical_slots')`,
				`SELECT synchronize_logical_slots() FROM "pg_catalog"."pg_extension" WHERE ("extname" = 'synchronize_logical_slots')`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries, err := tt.builder.Build(tt.config)
			require.NoError(t, err)
			require.Len(t, queries, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, queries[i].Text)
			}
		})
	}
}

func TestBuilders_ArePure(t *testing.T) {
	builders := map[string]struct {
		b Builder
		c cfg.WorkerConfiguration
	}{
		"slot_sync": {SlotSync{}, cfg.Default().SlotSync},
		"launcher":  {Launcher{}, cfg.Default().Launcher},
	}

	for name, tc := range builders {
		t.Run(name, func(t *testing.T) {
			first, err := tc.b.Build(tc.c)
			require.NoError(t, err)
			second, err := tc.b.Build(tc.c)
			require.NoError(t, err)
			assert.Equal(t, first, second)
			assert.True(t, Equal(first, second))
		})
	}
}

func TestBuild_OnlyInterpolatedFieldsChangeText(t *testing.T) {
	base := cfg.Default().SlotSync
	before, err := SlotSync{}.Build(base)
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(c *cfg.WorkerConfiguration)
		changed bool
	}{
		{"interval", func(c *cfg.WorkerConfiguration) { c.IntervalSeconds = 30 }, false},
		{"database", func(c *cfg.WorkerConfiguration) { c.Database = "other" }, false},
		{"gateway", func(c *cfg.WorkerConfiguration) { c.Gateway = "standby_fdw" }, true},
		{"marker", func(c *cfg.WorkerConfiguration) { c.MarkerExtension = "other_ext" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			after, err := SlotSync{}.Build(c)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, !Equal(before, after))
		})
	}
}

func TestEqual(t *testing.T) {
	a := []Prepared{{Name: "a", Text: "SELECT 1"}}

	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(a, []Prepared{{Name: "a", Text: "SELECT 1"}}))
	assert.False(t, Equal(a, nil))
	assert.False(t, Equal(a, []Prepared{{Name: "a", Text: "SELECT 2"}}))
	assert.False(t, Equal(a, []Prepared{{Name: "a", Text: "SELECT 1", Gate: true}}))
}

func TestBuilderFunc(t *testing.T) {
	var b Builder = BuilderFunc(func(c cfg.WorkerConfiguration) ([]Prepared, error) {
		return []Prepared{{Name: c.Database, Text: "SELECT 1"}}, nil
	})

	queries, err := b.Build(cfg.WorkerConfiguration{Database: "db"})
	require.NoError(t, err)
	assert.Equal(t, "db", queries[0].Name)
}
