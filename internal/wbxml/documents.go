package wbxml

import "fmt"

// BuildFolderSync encodes `<FolderSync><SyncKey>{syncKey}</SyncKey></FolderSync>`
// per spec.md §4.2.2.
func BuildFolderSync(syncKey string) []byte {
	w := NewWriter(PageFolder)
	w.StartTag(TagFolderSync, true)
	w.Element(TagFolderSyncKey, syncKey)
	w.EndTag()
	return w.Bytes()
}

// FolderSyncResult is the decoded response to a FolderSync request.
type FolderSyncResult struct {
	Status  int
	SyncKey string
}

// NeedsResync reports the sync-key-churn condition from spec.md §4.2.2:
// "if the parser indicates 'needs re-sync' ... loop." EAS signals this with
// status 3 (invalid sync key).
func (r *FolderSyncResult) NeedsResync() bool {
	return r.Status == 3
}

// ParseFolderSync decodes a FolderSync response body.
func ParseFolderSync(data []byte) (*FolderSyncResult, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}

	var result FolderSyncResult
	for {
		ev, err := r.Next()
		if err != nil {
			return nil, err
		}
		if ev == nil {
			break
		}
		if ev.Kind != EventStartTag {
			continue
		}
		switch ev.Tag {
		case TagFolderSyncKey:
			text, err := nextText(r)
			if err != nil {
				return nil, err
			}
			result.SyncKey = text
		case TagStatus:
			text, err := nextText(r)
			if err != nil {
				return nil, err
			}
			n, ok := atoiSafe(text)
			if !ok {
				return nil, fmt.Errorf("wbxml: non-numeric FolderSync status %q", text)
			}
			result.Status = n
		}
	}
	return &result, nil
}

// PingFolder is one folder reported in a Ping request or response.
type PingFolder struct {
	ID    string
	Class string
}

// BuildPing encodes the Ping request body from spec.md §4.2.3/§6:
// HeartbeatInterval plus a list of PingFolder{Id, Class}.
func BuildPing(heartbeatSeconds int, folders []PingFolder) []byte {
	w := NewWriter(PagePing)
	w.StartTag(TagPing, true)
	w.Element(TagPingHeartbeat, fmt.Sprintf("%d", heartbeatSeconds))
	w.StartTag(TagPingFolders, true)
	for _, f := range folders {
		w.StartTag(TagPingFolder, true)
		w.Element(TagPingID, f.ID)
		w.Element(TagPingClass, f.Class)
		w.EndTag()
	}
	w.EndTag() // Folders
	w.EndTag() // Ping
	return w.Bytes()
}

// PingResult is the decoded response to a Ping request (spec.md §4.2.4).
type PingResult struct {
	Status        int
	ChangedFolders []string
}

// ParsePing decodes a Ping response body.
func ParsePing(data []byte) (*PingResult, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}

	var result PingResult
	for {
		ev, err := r.Next()
		if err != nil {
			return nil, err
		}
		if ev == nil {
			break
		}
		if ev.Kind != EventStartTag {
			continue
		}
		switch ev.Tag {
		case TagPingStatus:
			text, err := nextText(r)
			if err != nil {
				return nil, err
			}
			n, ok := atoiSafe(text)
			if !ok {
				return nil, fmt.Errorf("wbxml: non-numeric Ping status %q", text)
			}
			result.Status = n
		case TagPingID:
			text, err := nextText(r)
			if err != nil {
				return nil, err
			}
			result.ChangedFolders = append(result.ChangedFolders, text)
		}
	}
	return &result, nil
}

// SyncCollectionRequest holds the parameters for one <Collection> in a Sync
// request body (spec.md §4.2.6).
type SyncCollectionRequest struct {
	Class           string
	SyncKey         string
	CollectionID    string
	WindowSize      int
	FilterType      string // "" to omit (Contacts never sends one)
	BodyPreference  int    // 0 to omit, else 1 (text) or 2 (html)
	MinVersionForBP string // "12.0" gate per spec.md §4.2.6; caller decides
}

// BuildSync encodes the Sync document from spec.md §4.2.6.
func BuildSync(req SyncCollectionRequest) []byte {
	w := NewWriter(PageAirSync)
	w.StartTag(TagSync, true)
	w.StartTag(TagCollections, true)
	w.StartTag(TagCollection, true)

	w.Element(TagClass, req.Class)
	w.Element(TagSyncKey, req.SyncKey)
	w.Element(TagCollectionID, req.CollectionID)
	w.EmptyElement(TagDeletesAsMoves)

	if req.SyncKey != "0" {
		w.EmptyElement(TagGetChanges)
	}

	w.Element(TagWindowSize, fmt.Sprintf("%d", req.WindowSize))

	if req.FilterType != "" || req.BodyPreference != 0 {
		w.StartTag(TagOptions, true)
		if req.FilterType != "" {
			w.Element(TagFilterType, req.FilterType)
		}
		if req.BodyPreference != 0 {
			w.SwitchPage(PageAirSyncBase)
			w.StartTag(TagBodyPreference, true)
			w.Element(TagBPType, fmt.Sprintf("%d", req.BodyPreference))
			w.EndTag()
			w.SwitchPage(PageAirSync)
		}
		w.EndTag() // Options
	}

	w.EndTag() // Collection
	w.EndTag() // Collections
	w.EndTag() // Sync
	return w.Bytes()
}

// SyncResult is the decoded response to a Sync request (spec.md §4.2.6).
type SyncResult struct {
	SyncKey       string
	MoreAvailable bool
	ChangeCount   int // count of <Add>/<Change>/<Delete> elements in <Commands>
}

// ParseSync decodes a Sync response body enough to advance the mailbox's
// sync key, know whether to loop (spec.md §4.2.6: "the worker loops until
// false or stopped"), and count how many items the server actually reported
// changing. Content application (messages added/changed) is the store
// adapter's responsibility, out of scope per spec.md §1 — but the count
// itself feeds SpuriousChangeDefense.Observe, which needs to tell a real
// change from an empty Ping-triggered Sync.
func ParseSync(data []byte) (*SyncResult, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}

	var result SyncResult
	for {
		ev, err := r.Next()
		if err != nil {
			return nil, err
		}
		if ev == nil {
			break
		}
		if ev.Kind != EventStartTag {
			continue
		}
		switch ev.Tag {
		case TagSyncKey:
			text, err := nextText(r)
			if err != nil {
				return nil, err
			}
			result.SyncKey = text
		case TagMoreAvailable:
			result.MoreAvailable = true
		case TagAdd, TagChange, TagDelete:
			result.ChangeCount++
		}
	}
	return &result, nil
}

// BuildMoveItems encodes a single-item MoveItems request
// (SPEC_FULL.md §4.2 supplemented wire shape).
func BuildMoveItems(messageID, srcFolderID, dstFolderID string) []byte {
	w := NewWriter(PageAirSync)
	w.StartTag(TagMoveItems, true)
	w.StartTag(TagMove, true)
	w.Element(TagSrcMsgID, messageID)
	w.Element(TagSrcFldID, srcFolderID)
	w.Element(TagDstFldID, dstFolderID)
	w.EndTag()
	w.EndTag()
	return w.Bytes()
}

// MeetingResponseKind enumerates the accept/tentative/decline choices from
// spec.md §3's MeetingResponse request variant.
type MeetingResponseKind int

const (
	MeetingAccept MeetingResponseKind = iota + 1
	MeetingTentative
	MeetingDecline
)

// BuildMeetingResponse encodes a MeetingResponse request
// (SPEC_FULL.md §4.2 supplemented wire shape).
func BuildMeetingResponse(messageID, collectionID string, kind MeetingResponseKind) []byte {
	w := NewWriter(PageAirSync)
	w.StartTag(TagMeetingResponse, true)
	w.StartTag(TagMRRequest, true)
	w.Element(TagMRUserResponse, fmt.Sprintf("%d", int(kind)))
	w.Element(TagCollectionID, collectionID)
	w.Element(TagMRRequestID, messageID)
	w.EndTag()
	w.EndTag()
	return w.Bytes()
}

func nextText(r *Reader) (string, error) {
	ev, err := r.Next()
	if err != nil {
		return "", err
	}
	if ev == nil {
		return "", fmt.Errorf("wbxml: expected text, got end of document")
	}
	if ev.Kind == EventEndTag {
		return "", nil // empty element
	}
	if ev.Kind != EventText {
		return "", fmt.Errorf("wbxml: expected text event, got kind %d", ev.Kind)
	}
	// consume the matching end tag
	if end, err := r.Next(); err != nil {
		return "", err
	} else if end == nil || end.Kind != EventEndTag {
		return "", fmt.Errorf("wbxml: expected end tag after text")
	}
	return ev.Text, nil
}

func atoiSafe(s string) (int, bool) {
	n := 0
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
