package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "Hello world", Slug("Hello   world"))
}

func TestSlugFallback(t *testing.T) {
	require.Equal(t, "no subject", Slug("   "))
	require.Equal(t, "no subject", Slug(""))
	require.Equal(t, "no subject", Slug("////"))
}

func TestSlugFiltersUnsafeChars(t *testing.T) {
	slug := Slug(`a/b:c*d?"e<f>g|h`)
	for _, c := range unsafeFilenameChars {
		require.NotContains(t, slug, string(c))
	}
	require.Equal(t, "abcdefgh", slug)
}

func TestSlugFiltersControlChars(t *testing.T) {
	slug := Slug("Test\x00\x01Tab\nNewline\rReturn")
	for _, r := range slug {
		require.False(t, r < 0x20, "control char survived")
	}
}

func TestSlugTruncatesTo80Runes(t *testing.T) {
	slug := Slug(strings.Repeat("a", 200))
	require.Equal(t, 80, len([]rune(slug)))

	// Truncation is rune-aware, not byte-aware.
	slug = Slug(strings.Repeat("世", 200))
	require.Equal(t, 80, len([]rune(slug)))
}

func TestSlugPreservesUnicode(t *testing.T) {
	slug := Slug("Hello 世界 Привет")
	require.Contains(t, slug, "世界")
	require.Contains(t, slug, "Привет")
}

func TestSlugNoTrailingSpaceAfterTruncation(t *testing.T) {
	subject := strings.Repeat("a", 79) + " b"
	slug := Slug(subject)
	require.Equal(t, slug, strings.TrimRight(slug, " "))
}

func TestMessageFilenames(t *testing.T) {
	const ulid = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	require.Equal(t, "Test Subject (01ARZ3NDEKTSV4RRFFQ69G5FAV).eml", MessageFilename("Test Subject", ulid))
	require.Equal(t, ".Test (01ARZ3NDEKTSV4RRFFQ69G5FAV).yml", SidecarFilename("Test", ulid))
	require.Equal(t, ".Test (01ARZ3NDEKTSV4RRFFQ69G5FAV).html", HTMLFilename("Test", ulid))
	require.Equal(t, ".Test (01ARZ3NDEKTSV4RRFFQ69G5FAV).txt", TextFilename("Test", ulid))
}

func TestOutboxFilenames(t *testing.T) {
	const ulid = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	require.Equal(t, ulid+".eml", OutboxMessageFilename(ulid))
	require.Equal(t, "."+ulid+".yml", OutboxSidecarFilename(ulid))
	require.Equal(t, "."+ulid+".html", OutboxHTMLFilename(ulid))
}
