package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterArgs(t *testing.T) {
	allowed := []string{"-c", "--config"}

	tests := map[string]struct {
		args []string
		want []string
	}{
		"short flag with separate value": {
			args: []string{"-c", "hydrosync.json", "-a", ":8080"},
			want: []string{"-c", "hydrosync.json"},
		},
		"long flag with equals": {
			args: []string{"--config=alt.json", "-d", "field.db"},
			want: []string{"--config=alt.json"},
		},
		"both forms present, order preserved": {
			args: []string{"--config=first.json", "-c", "second.json", "-x", "1"},
			want: []string{"--config=first.json", "-c", "second.json"},
		},
		"unknown flags ignored": {
			args: []string{"-x", "1", "--y=2", "positional"},
			want: []string{},
		},
		"flag without value at end kept as-is": {
			args: []string{"-c"},
			want: []string{"-c"},
		},
		"next dash token is not a value": {
			args: []string{"-c", "--config=alt.json"},
			want: []string{"-c", "--config=alt.json"},
		},
		"repeated flag preserved in order": {
			args: []string{"-c", "one.json", "-c", "two.json"},
			want: []string{"-c", "one.json", "-c", "two.json"},
		},
		"empty args": {
			args: []string{},
			want: []string{},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.want, FilterArgs(tt.args, allowed))
		})
	}
}

func TestFilterArgs_MultipleAllowed(t *testing.T) {
	got := FilterArgs(
		[]string{"-a", "localhost:8080", "-c", "hydrosync.json", "--other", "x"},
		[]string{"-c", "-a"},
	)
	require.Equal(t, []string{"-a", "localhost:8080", "-c", "hydrosync.json"}, got)
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short -c with value", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/path/short.json"}
		assert.Equal(t, "/path/short.json", JsonConfigFlags())
	})

	t.Run("long -config with value", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", "/path/long.json"}
		assert.Equal(t, "/path/long.json", JsonConfigFlags())
	})

	t.Run("unknown flags are ignored", func(t *testing.T) {
		os.Args = []string{"testbin", "-x", "1", "-y", "2"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("multiple flags, last wins", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", "/path/1.json", "-config", "/path/2.json"}
		assert.Equal(t, "/path/2.json", JsonConfigFlags())
	})
}
