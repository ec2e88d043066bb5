package artifact

import (
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine produces blobs with the current-generation header shape:
// magic, version hash, source hash, flag hash, checksum, payload length.
type fakeEngine struct {
	version    string
	flagHash   uint32
	checksum   uint32
	lastSource string
	calls      int
}

func (f *fakeEngine) Version() string {
	return f.version
}

func (f *fakeEngine) CreateCache(source, origin string) ([]byte, error) {
	f.calls++
	f.lastSource = source

	blob := make([]byte, HeaderSize+len(source))
	binary.LittleEndian.PutUint32(blob[0:4], 0xC0DE0628)
	binary.LittleEndian.PutUint32(blob[4:8], 0x5A5A5A5A)
	binary.LittleEndian.PutUint32(blob[8:12], uint32(len(utf16.Encode([]rune(source)))))
	binary.LittleEndian.PutUint32(blob[12:16], f.flagHash)
	binary.LittleEndian.PutUint32(blob[16:20], f.checksum)
	binary.LittleEndian.PutUint32(blob[20:24], uint32(len(source)))
	copy(blob[HeaderSize:], source)
	return blob, nil
}

type fakeScript struct {
	rejected bool
}

func (s fakeScript) CacheRejected() bool {
	return s.rejected
}

func newTestCodec(t *testing.T, eng *fakeEngine, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(eng, opts...)
	require.NoError(t, err)
	return c
}

func TestNewCodec_DetectsGeneration(t *testing.T) {
	tests := []struct {
		version string
		want    Generation
	}{
		{"6.1.534.50", GenerationLegacy},
		{"7.4.288.21", GenerationLTS},
		{"8.4.371.23", GenerationLTS},
		{"10.2.154.26", GenerationLTS},
		{"10.7.193.13", GenerationCurrent},
		{"11.1.277.13", GenerationCurrent},
		{"v12.4.254.21", GenerationCurrent},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			c := newTestCodec(t, &fakeEngine{version: tt.version})
			assert.Equal(t, tt.want, c.Generation())
			assert.Equal(t, tt.want, c.Layout().Generation)
		})
	}
}

func TestNewCodec_RejectsUnlistedEngines(t *testing.T) {
	for _, version := range []string{"6.6.346.32", "7.0.276.38", "10.5.0", "14.0.1", "", "eleven"} {
		t.Run(version, func(t *testing.T) {
			c, err := NewCodec(&fakeEngine{version: version})
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, errors.Is(err, ErrUnsupportedEngineGeneration))

			var genErr *UnsupportedEngineGenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, version, genErr.Version)
		})
	}
}

func TestNewCodec_GenerationOverride(t *testing.T) {
	c := newTestCodec(t, &fakeEngine{version: "99.0"}, WithGeneration(GenerationLTS))
	assert.Equal(t, GenerationLTS, c.Generation())

	_, err := NewCodec(&fakeEngine{version: "11.1"}, WithGeneration("future"))
	assert.True(t, errors.Is(err, ErrUnsupportedEngineGeneration))
}

func TestCompile_WrapsModules(t *testing.T) {
	eng := &fakeEngine{version: "11.1.277.13"}
	c := newTestCodec(t, eng)

	_, err := c.Compile("module.exports = 1;", true)
	require.NoError(t, err)
	assert.Equal(t, ModulePreamble+"module.exports = 1;"+ModulePostamble, eng.lastSource)

	_, err = c.Compile("1 + 1", false)
	require.NoError(t, err)
	assert.Equal(t, "1 + 1", eng.lastSource)
}

func TestFix_CurrentGenerationPatchesTwoRanges(t *testing.T) {
	producer := &fakeEngine{version: "11.1.277.13", flagHash: 0x11111111, checksum: 0x22222222}
	running := &fakeEngine{version: "11.3.244.8", flagHash: 0xAAAAAAAA, checksum: 0xBBBBBBBB}

	blob, err := newTestCodec(t, producer).Compile("module.exports = 1;", true)
	require.NoError(t, err)
	original := append([]byte(nil), blob...)

	fixed, err := newTestCodec(t, running).Fix(blob)
	require.NoError(t, err)

	assert.Equal(t, original, blob, "input blob must not be mutated")
	assert.Equal(t, uint32(0xAAAAAAAA), binary.LittleEndian.Uint32(fixed.Data[12:16]))
	assert.Equal(t, uint32(0xBBBBBBBB), binary.LittleEndian.Uint32(fixed.Data[16:20]))
	assert.Equal(t, original[:12], fixed.Data[:12])
	assert.Equal(t, original[20:], fixed.Data[20:])
}

func TestFix_LTSGenerationPatchesOneRange(t *testing.T) {
	producer := &fakeEngine{version: "8.4.371.23", flagHash: 0x11111111, checksum: 0x22222222}
	running := &fakeEngine{version: "9.4.146.26", flagHash: 0xAAAAAAAA, checksum: 0xBBBBBBBB}

	blob, err := newTestCodec(t, producer).Compile("exports.a = 2;", true)
	require.NoError(t, err)

	fixed, err := newTestCodec(t, running).Fix(blob)
	require.NoError(t, err)

	assert.Equal(t, uint32(0xAAAAAAAA), binary.LittleEndian.Uint32(fixed.Data[12:16]))
	assert.Equal(t, uint32(0x22222222), binary.LittleEndian.Uint32(fixed.Data[16:20]))
}

func TestFix_LegacyGeneration(t *testing.T) {
	running := &fakeEngine{version: "6.1.534.50", flagHash: 0xAAAAAAAA, checksum: 0xBBBBBBBB}
	c := newTestCodec(t, running)

	// Legacy blobs carry the source length at [12,16).
	blob := make([]byte, 40)
	binary.LittleEndian.PutUint32(blob[12:16], 7)
	binary.LittleEndian.PutUint32(blob[16:20], 0x01010101)
	binary.LittleEndian.PutUint32(blob[20:24], 0x02020202)

	fixed, err := c.Fix(blob)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), fixed.SourceLength)
	assert.Equal(t, uint32(0xBBBBBBBB), binary.LittleEndian.Uint32(fixed.Data[16:20]))
	// The reference's payload length lands in [20,24) for this layout.
	ref, err := running.CreateCache(`"tsb-`+Version+`"`, "")
	require.NoError(t, err)
	assert.Equal(t, ref[20:24], fixed.Data[20:24])
}

func TestFix_Idempotent(t *testing.T) {
	producer := &fakeEngine{version: "10.2.154.26", flagHash: 1, checksum: 2}
	running := &fakeEngine{version: "11.8.172.17", flagHash: 3, checksum: 4}
	c := newTestCodec(t, running)

	blob, err := newTestCodec(t, producer).Compile("console.log('hi');", true)
	require.NoError(t, err)

	once, err := c.Fix(blob)
	require.NoError(t, err)
	twice, err := c.Fix(once.Data)
	require.NoError(t, err)

	assert.Equal(t, once.Data, twice.Data)
	assert.Equal(t, once.Placeholder, twice.Placeholder)
}

func TestFix_CompilesReferenceOnce(t *testing.T) {
	running := &fakeEngine{version: "11.1.277.13"}
	c := newTestCodec(t, running)

	blob, err := c.Compile("1", false)
	require.NoError(t, err)
	before := running.calls

	for i := 0; i < 3; i++ {
		_, err := c.Fix(blob)
		require.NoError(t, err)
	}
	assert.Equal(t, before+1, running.calls)
}

func TestFix_DecodesSourceLength(t *testing.T) {
	sources := []string{
		"",
		"x",
		"module.exports = 1;",
		"exports.greeting = 'héllo wörld';",
	}

	eng := &fakeEngine{version: "11.1.277.13"}
	c := newTestCodec(t, eng)

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			blob, err := c.Compile(src, true)
			require.NoError(t, err)

			fixed, err := c.Fix(blob)
			require.NoError(t, err)

			want := len(utf16.Encode([]rune(Wrap(src))))
			assert.Equal(t, uint32(want), fixed.SourceLength)
			assert.Equal(t, want, utf8.RuneCountInString(fixed.Placeholder))
		})
	}
}

func TestFix_TruncatedHeader(t *testing.T) {
	c := newTestCodec(t, &fakeEngine{version: "11.1.277.13"})

	for _, size := range []int{0, 1, 12, 23} {
		fixed, err := c.Fix(make([]byte, size))
		require.Error(t, err)
		assert.Nil(t, fixed)
		assert.True(t, errors.Is(err, ErrInvalidArtifact))
	}
}

func TestFix_ImpossibleSourceLength(t *testing.T) {
	c := newTestCodec(t, &fakeEngine{version: "11.1.277.13"})

	blob := make([]byte, 32)
	binary.LittleEndian.PutUint32(blob[8:12], 0xFFFFFFFF)

	_, err := c.Fix(blob)
	assert.True(t, errors.Is(err, ErrInvalidArtifact))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "", Placeholder(0))
	assert.Equal(t, "", Placeholder(1))
	assert.Equal(t, `""`, Placeholder(2))
	assert.Equal(t, "\"\u200b\u200b\u200b\"", Placeholder(5))
	assert.Equal(t, 1000, utf8.RuneCountInString(Placeholder(1000)))
}

func TestAssert(t *testing.T) {
	assert.NoError(t, Assert(fakeScript{rejected: false}))

	err := Assert(fakeScript{rejected: true})
	assert.True(t, errors.Is(err, ErrInvalidArtifact))

	assert.True(t, errors.Is(Assert(nil), ErrInvalidArtifact))
}
