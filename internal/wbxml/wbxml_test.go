package wbxml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFolderSyncRoundTrip(t *testing.T) {
	doc := BuildFolderSync("0")
	r, err := NewReader(doc)
	require.NoError(t, err)

	ev, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, EventStartTag, ev.Kind)
	require.Equal(t, TagFolderSync, ev.Tag)
	require.True(t, ev.HasContent())

	ev, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, TagFolderSyncKey, ev.Tag)

	ev, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, EventText, ev.Kind)
	require.Equal(t, "0", ev.Text)
}

func TestParseFolderSyncResponse(t *testing.T) {
	w := NewWriter(PageFolder)
	w.StartTag(TagFolderSync, true)
	w.Element(TagStatus, "1")
	w.Element(TagFolderSyncKey, "abc123")
	w.EndTag()

	result, err := ParseFolderSync(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, 1, result.Status)
	require.Equal(t, "abc123", result.SyncKey)
	require.False(t, result.NeedsResync())
}

func TestParseFolderSyncNeedsResync(t *testing.T) {
	w := NewWriter(PageFolder)
	w.StartTag(TagFolderSync, true)
	w.Element(TagStatus, "3")
	w.EndTag()

	result, err := ParseFolderSync(w.Bytes())
	require.NoError(t, err)
	require.True(t, result.NeedsResync())
}

func TestPingRoundTrip(t *testing.T) {
	folders := []PingFolder{
		{ID: "5", Class: ClassEmail},
		{ID: "9", Class: ClassCalendar},
	}
	doc := BuildPing(470, folders)

	w := NewWriter(PagePing)
	w.StartTag(TagPing, true)
	w.Element(TagPingStatus, "2")
	for _, f := range folders {
		w.Element(TagPingID, f.ID)
	}
	w.EndTag()

	result, err := ParsePing(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, PingStatusChangesFound, result.Status)
	require.Equal(t, []string{"5", "9"}, result.ChangedFolders)

	// The request document must at least parse back as well-formed WBXML.
	r, err := NewReader(doc)
	require.NoError(t, err)
	ev, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, TagPing, ev.Tag)
}

func TestSyncRequestIncludesGetChangesOnlyAfterFirstSync(t *testing.T) {
	first := BuildSync(SyncCollectionRequest{
		Class: ClassEmail, SyncKey: "0", CollectionID: "2", WindowSize: 5,
	})
	r, _ := NewReader(first)
	require.False(t, containsTag(r, TagGetChanges))

	subsequent := BuildSync(SyncCollectionRequest{
		Class: ClassEmail, SyncKey: "abc", CollectionID: "2", WindowSize: 5,
	})
	r, _ = NewReader(subsequent)
	require.True(t, containsTag(r, TagGetChanges))
}

func TestSyncRequestBodyPreferenceOnAirSyncBasePage(t *testing.T) {
	doc := BuildSync(SyncCollectionRequest{
		Class: ClassEmail, SyncKey: "abc", CollectionID: "2", WindowSize: 5,
		BodyPreference: 2,
	})
	r, err := NewReader(doc)
	require.NoError(t, err)

	var sawBodyPrefOnCorrectPage bool
	for {
		ev, err := r.Next()
		require.NoError(t, err)
		if ev == nil {
			break
		}
		if ev.Kind == EventStartTag && ev.Tag == TagBodyPreference && ev.Page == PageAirSyncBase {
			sawBodyPrefOnCorrectPage = true
		}
	}
	require.True(t, sawBodyPrefOnCorrectPage)
}

func TestParseSyncMoreAvailable(t *testing.T) {
	w := NewWriter(PageAirSync)
	w.StartTag(TagSync, true)
	w.StartTag(TagCollections, true)
	w.StartTag(TagCollection, true)
	w.Element(TagSyncKey, "2")
	w.EmptyElement(TagMoreAvailable)
	w.EndTag()
	w.EndTag()
	w.EndTag()

	result, err := ParseSync(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, "2", result.SyncKey)
	require.True(t, result.MoreAvailable)
}

func TestParseSyncCountsCommandElements(t *testing.T) {
	w := NewWriter(PageAirSync)
	w.StartTag(TagSync, true)
	w.StartTag(TagCollections, true)
	w.StartTag(TagCollection, true)
	w.Element(TagSyncKey, "3")
	w.StartTag(TagCommands, true)
	w.EmptyElement(TagAdd)
	w.EmptyElement(TagChange)
	w.EmptyElement(TagChange)
	w.EmptyElement(TagDelete)
	w.EndTag() // Commands
	w.EndTag() // Collection
	w.EndTag() // Collections
	w.EndTag() // Sync

	result, err := ParseSync(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, 4, result.ChangeCount)
	require.False(t, result.MoreAvailable)
}

func TestParseSyncNoCommandsIsZeroChangeCount(t *testing.T) {
	w := NewWriter(PageAirSync)
	w.StartTag(TagSync, true)
	w.StartTag(TagCollections, true)
	w.StartTag(TagCollection, true)
	w.Element(TagSyncKey, "1")
	w.EndTag()
	w.EndTag()
	w.EndTag()

	result, err := ParseSync(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, 0, result.ChangeCount)
}

func containsTag(r *Reader, tag byte) bool {
	for {
		ev, err := r.Next()
		if err != nil || ev == nil {
			return false
		}
		if ev.Kind == EventStartTag && ev.Tag == tag {
			return true
		}
	}
}
