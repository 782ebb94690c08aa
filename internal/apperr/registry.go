package apperr

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// Stable error codes. Clients and tests reference these instead of the
// numeric strings.
const (
	CodeUploadEmpty      = "E101"
	CodeUploadNotZip     = "E102"
	CodeUploadTooLarge   = "E103"
	CodeUploadBadEncode  = "E104"

	CodeArchiveCorrupt   = "E201"
	CodeArchiveTraversal = "E202"
	CodeArchiveTooMany   = "E203"
	CodeArchiveTooBig    = "E204"
	CodeArchiveRatio     = "E205"
	CodeArchiveNoData    = "E206"

	CodeDatasetNotFound  = "E301"
	CodeDatasetDecode    = "E302"

	CodeSessionNotFound  = "E401"
	CodeSessionLimit     = "E402"
	CodeIPLimit          = "E403"
	CodeScenarioNotFound = "E404"

	CodeConfigInvalid    = "E501"
)

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Upload Errors (E101-E199)
	// ============================================

	CodeUploadEmpty: {
		Category: CategoryUpload,
		Message:  "Uploaded file is empty",
		Detail:   "The request contained no file data. Compress the analysis output directory into a ZIP archive and upload it.",
	},
	CodeUploadNotZip: {
		Category: CategoryUpload,
		Message:  "Uploaded file is not a ZIP archive",
		Detail:   "Only ZIP archives of precomputed analysis artifacts are accepted.",
	},
	CodeUploadTooLarge: {
		Category: CategoryUpload,
		Message:  "Uploaded file exceeds the size limit",
	},
	CodeUploadBadEncode: {
		Category: CategoryUpload,
		Message:  "Upload payload could not be decoded",
		Detail:   "Base64 data URL uploads must use the data:<type>;base64,<payload> form.",
	},

	// ============================================
	// Archive Errors (E201-E299)
	// ============================================

	CodeArchiveCorrupt: {
		Category: CategoryArchive,
		Message:  "Archive is corrupt or not a ZIP file",
	},
	CodeArchiveTraversal: {
		Category: CategoryArchive,
		Message:  "Archive member escapes the extraction directory",
		Detail:   "Members with absolute paths or .. components are rejected.",
	},
	CodeArchiveTooMany: {
		Category: CategoryArchive,
		Message:  "Archive contains too many members",
	},
	CodeArchiveTooBig: {
		Category: CategoryArchive,
		Message:  "Archive uncompressed size exceeds the limit",
	},
	CodeArchiveRatio: {
		Category: CategoryArchive,
		Message:  "Archive compression ratio exceeds the limit",
		Detail:   "Highly compressed members are rejected as a ZIP bomb defense.",
	},
	CodeArchiveNoData: {
		Category: CategoryArchive,
		Message:  "Archive contains no recognizable analysis artifacts",
		Detail:   "Expected at least one heat_ALL table in the archive or its scenario directories.",
	},

	// ============================================
	// Dataset Errors (E301-E399)
	// ============================================

	CodeDatasetNotFound: {
		Category: CategoryDataset,
		Message:  "Dataset not present in scenario",
	},
	CodeDatasetDecode: {
		Category: CategoryDataset,
		Message:  "Dataset file could not be decoded",
	},

	// ============================================
	// Session Errors (E401-E499)
	// ============================================

	CodeSessionNotFound: {
		Category: CategorySession,
		Message:  "Session not found",
		Detail:   "The session may have expired or been evicted. Upload the archive again.",
	},
	CodeSessionLimit: {
		Category: CategorySession,
		Message:  "Maximum session limit reached",
	},
	CodeIPLimit: {
		Category: CategorySession,
		Message:  "Too many sessions from this address",
	},
	CodeScenarioNotFound: {
		Category: CategorySession,
		Message:  "Scenario not found in session",
	},

	// ============================================
	// Config Errors (E501-E599)
	// ============================================

	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Configuration is invalid",
	},
}
