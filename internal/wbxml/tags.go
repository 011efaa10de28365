package wbxml

// Page-relative tag tokens. EAS's real codebook assigns specific values per
// MS-ASWBXML; this repo assigns its own internally-consistent numbering
// since no codebook is shipped alongside spec.md (the WBXML tag tables are
// named as an external collaborator in spec.md §1). What matters for the
// driver above this package is that encode and decode agree, which these
// constants guarantee.

// AirSync page (0x00): the Sync command body. FolderSync and Ping are built
// on their own pages below; ParseFolderSync still matches TagStatus from
// this table by its page-relative value.
const (
	TagSync            byte = 0x05
	TagResponses       byte = 0x06
	TagStatus          byte = 0x07
	TagCollection      byte = 0x08
	TagClass           byte = 0x09
	TagSyncKey         byte = 0x0A
	TagCollectionID    byte = 0x0B
	TagGetChanges      byte = 0x0C
	TagMoreAvailable   byte = 0x0D
	TagWindowSize      byte = 0x0E
	TagCommands        byte = 0x0F
	TagOptions         byte = 0x10
	TagFilterType      byte = 0x11
	TagDeletesAsMoves  byte = 0x12
	TagCollections     byte = 0x13
	TagAdd             byte = 0x1D
	TagChange          byte = 0x1E
	TagDelete          byte = 0x1F
)

// Folder page (0x07).
const (
	TagFolderSync     byte = 0x05
	TagFolderSyncKey  byte = 0x06
	TagFolderChanges  byte = 0x07
	TagFolderCount    byte = 0x08
	TagFolderAdd      byte = 0x09
	TagFolderDelete   byte = 0x0A
	TagFolderUpdate   byte = 0x0B
	TagFolderServerID byte = 0x0C
	TagFolderParentID byte = 0x0D
	TagFolderDisplay  byte = 0x0E
	TagFolderType     byte = 0x0F
)

// Ping page (0x0D).
const (
	TagPing              byte = 0x05
	TagPingHeartbeat     byte = 0x06
	TagPingFolders       byte = 0x07
	TagPingFolder        byte = 0x08
	TagPingID            byte = 0x09
	TagPingClass         byte = 0x0A
	TagPingStatus        byte = 0x0B
	TagPingMaxFolders    byte = 0x0C
)

// AirSyncBase page (0x11).
const (
	TagBodyPreference byte = 0x05
	TagBPType         byte = 0x06
	TagBPTruncSize    byte = 0x07
)

// MoveItems / MeetingResponse are modeled on the AirSync page per
// SPEC_FULL.md §4.2 ("minimal documented EAS wire shapes").
const (
	TagMoveItems        byte = 0x14
	TagMove             byte = 0x15
	TagSrcMsgID         byte = 0x16
	TagSrcFldID         byte = 0x17
	TagDstFldID         byte = 0x18
	TagMeetingResponse  byte = 0x19
	TagMRRequest        byte = 0x1A
	TagMRUserResponse   byte = 0x1B
	TagMRRequestID      byte = 0x1C
)

// EAS Ping status codes (spec.md §4.2.3/§4.2.4).
const (
	PingStatusCompleted    = 1
	PingStatusChangesFound = 2
)

// FolderClass names used in <Class> elements (spec.md §4.2.3/§4.2.6).
const (
	ClassEmail    = "Email"
	ClassCalendar = "Calendar"
	ClassContacts = "Contacts"
)
