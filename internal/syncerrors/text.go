package syncerrors

// User facing texts.
const (
	TextSyncPaused                 = "Sync is Paused"
	TextSyncError                  = "Sync Error"
	TextInvalidLoginDescription    = "Sync encountered an error. Please re-enter your recovery code or sign in again to resume syncing."
	TextTooManyRequestsDescription = "Sync & Backup has been paused due to too many requests. It will resume automatically."
	TextBadRequestDescription      = "Sync & Backup encountered an error. Try turning sync off and on again."

	TextLimitExceeded               = "Sync limit exceeded"
	TextBookmarksLimitDescription   = "Bookmark limit exceeded. Delete some to resume syncing."
	TextBookmarksLimitAction        = "Manage Bookmarks"
	TextCredentialsLimitDescription = "Logins limit exceeded. Delete some to resume syncing."
	TextCredentialsLimitAction      = "Manage Logins"

	TextBookmarksPausedAlertTitle         = "Bookmarks Sync is Paused"
	TextBookmarksPausedAlertDescription   = "You have exceeded the bookmarks sync limit. Try deleting some bookmarks. Until this is resolved your bookmarks will not be backed up."
	TextCredentialsPausedAlertTitle       = "Passwords Sync is Paused"
	TextCredentialsPausedAlertDescription = "You have exceeded the passwords sync limit. Try deleting some passwords. Until this is resolved your passwords will not be backed up."
	TextSyncPausedAlertTitle              = "Sync is Paused"
	TextInvalidLoginAlertDescription      = "Sync has been paused. If you want to continue syncing this device, reconnect using another device or your recovery code."
	TextSyncErrorAlertTitle               = "Sync Error"
	TextTooManyRequestsAlertDescription   = "Sync & Backup has been paused due to too many requests."
	TextBadRequestAlertDescription        = "Sync & Backup encountered an error. Try turning sync off and on again."
)
