package loader

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dyluth/tsb/internal/engine"
	"github.com/dyluth/tsb/internal/store"
	"github.com/dyluth/tsb/pkg/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	engine  *engine.V8
	codec   *artifact.Codec
	runtime *Runtime
	stdout  *bytes.Buffer
	dir     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	var stdout bytes.Buffer
	eng, err := engine.New(engine.WithStdout(&stdout), engine.WithStderr(&stdout))
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	codec, err := artifact.NewCodec(eng)
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, reg.Register(".tsb", NewArtifactHandler(codec, eng, store.NewFileStore(""))))
	require.NoError(t, reg.Register(".js", NewSourceHandler(eng)))
	require.NoError(t, reg.Register(".json", NewJSONHandler(eng)))

	rt, err := NewRuntime(eng, reg, WithArgv("tsb", "run"), WithEnv(map[string]string{"MODE": "test"}))
	require.NoError(t, err)

	return &testEnv{engine: eng, codec: codec, runtime: rt, stdout: &stdout, dir: t.TempDir()}
}

func (e *testEnv) writeSource(t *testing.T, name, text string) string {
	t.Helper()
	p := filepath.Join(e.dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(text), 0644))
	return p
}

func (e *testEnv) writeArtifact(t *testing.T, name, text string) string {
	t.Helper()
	blob, err := e.codec.Compile(text, true)
	require.NoError(t, err)
	p := filepath.Join(e.dir, filepath.FromSlash(name))
	require.NoError(t, store.NewFileStore("").Put(context.Background(), p, blob))
	return p
}

func TestRuntime_ArtifactRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	main := env.writeArtifact(t, "answer.tsb", "module.exports = { answer: 6 * 7, name: __filename };")

	exports, err := env.runtime.Main(main)
	require.NoError(t, err)

	obj, err := exports.AsObject()
	require.NoError(t, err)
	answer, err := obj.Get("answer")
	require.NoError(t, err)
	assert.Equal(t, int32(42), answer.Int32())

	name, err := obj.Get("name")
	require.NoError(t, err)
	assert.Equal(t, main, name.String())
}

func TestRuntime_MixedGraph(t *testing.T) {
	env := newTestEnv(t)
	env.writeArtifact(t, "lib/math.tsb", "exports.double = (n) => n * 2;")
	env.writeSource(t, "lib/config.json", `{"factor": 21}`)
	env.writeSource(t, "lib/index.js", "module.exports = require('./math').double(require('./config.json').factor);")
	main := env.writeSource(t, "main.js", "console.log(require('./lib'), process.env.MODE, typeof require.resolve('./lib'));")

	_, err := env.runtime.Main(main)
	require.NoError(t, err)
	assert.Equal(t, "42 test string\n", env.stdout.String())
}

func TestRuntime_PrefersFirstRegisteredExtension(t *testing.T) {
	env := newTestEnv(t)
	env.writeArtifact(t, "dual.tsb", "module.exports = 'artifact';")
	env.writeSource(t, "dual.js", "module.exports = 'source';")
	main := env.writeSource(t, "main.js", "console.log(require('./dual'));")

	_, err := env.runtime.Main(main)
	require.NoError(t, err)
	assert.Equal(t, "artifact\n", env.stdout.String())
}

func TestRuntime_CyclesSeePartialExports(t *testing.T) {
	env := newTestEnv(t)
	env.writeSource(t, "a.js", "exports.early = 1; const b = require('./b'); exports.fromB = b.sawEarly;")
	env.writeArtifact(t, "b.tsb", "const a = require('./a'); exports.sawEarly = a.early;")
	main := env.writeSource(t, "main.js", "const a = require('./a'); console.log(a.fromB, require('./a') === a);")

	_, err := env.runtime.Main(main)
	require.NoError(t, err)
	assert.Equal(t, "1 true\n", env.stdout.String())
}

func TestRuntime_RequireProperties(t *testing.T) {
	env := newTestEnv(t)
	env.writeSource(t, "dep.js", "module.exports = 1;")
	main := env.writeSource(t, "main.js", `
		require('./dep');
		console.log(JSON.stringify(require.extensions));
		console.log(require.main === module, Object.keys(require.cache).length);
		console.log(__dirname === process.cwd() || typeof __dirname);
		console.log(global === globalThis, process.argv[1]);
	`)

	_, err := env.runtime.Main(main)
	require.NoError(t, err)
	assert.Equal(t, "[\".tsb\",\".js\",\".json\"]\ntrue 2\nstring\ntrue run\n", env.stdout.String())
}

func TestRuntime_Errors(t *testing.T) {
	t.Run("bare specifier", func(t *testing.T) {
		env := newTestEnv(t)
		main := env.writeSource(t, "main.js", "require('lodash');")

		_, err := env.runtime.Main(main)
		var notFound *ModuleNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, "lodash", notFound.ID)
	})

	t.Run("missing artifact", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.runtime.Main(filepath.Join(env.dir, "gone.tsb"))
		var missing *MissingArtifactFileError
		require.True(t, errors.As(err, &missing))
	})

	t.Run("unresolvable relative id", func(t *testing.T) {
		env := newTestEnv(t)
		main := env.writeSource(t, "main.js", "require('./nowhere');")

		_, err := env.runtime.Main(main)
		assert.ErrorIs(t, err, ErrModuleNotFound)
	})

	t.Run("truncated artifact", func(t *testing.T) {
		env := newTestEnv(t)
		bad := env.writeSource(t, "bad.tsb", "short")

		_, err := env.runtime.Main(bad)
		assert.ErrorIs(t, err, artifact.ErrInvalidArtifact)
	})

	t.Run("caught require failure", func(t *testing.T) {
		env := newTestEnv(t)
		main := env.writeSource(t, "main.js", "try { require('./missing') } catch (e) { console.log('caught') }")

		_, err := env.runtime.Main(main)
		require.NoError(t, err)
		assert.Equal(t, "caught\n", env.stdout.String())
	})

	t.Run("failed module is not cached", func(t *testing.T) {
		env := newTestEnv(t)
		env.writeSource(t, "flaky.js", "if (!global.ready) throw new Error('not ready'); module.exports = 'ok';")
		main := env.writeSource(t, "main.js", `
			try { require('./flaky') } catch (e) { console.log(e.message.includes('not ready')) }
			global.ready = true;
			console.log(require('./flaky'));
		`)

		_, err := env.runtime.Main(main)
		require.NoError(t, err)
		assert.Equal(t, "true\nok\n", env.stdout.String())
	})
}
