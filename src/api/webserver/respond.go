package webserver

import "github.com/gin-gonic/gin"

// Error keys surfaced to clients. Kept as the short machine-readable
// identifiers the front-ends already switch on: the steem blockchains
// handlers use dash keys, the bounty/proposal handlers dotted ones.
const (
	errAccountAlreadyLinked  = "account-already-linked"
	errDocumentMissing       = "document-does-not-exist"
	errDocumentDoesNotExist  = "general.documentDoesNotExist"
	errCategoryNotAvailable  = "general.categoryNotAvailable"
	errUnauthorized          = "general.unauthorized"
	errUpdateFail            = "general.updateFail"
	errDeleteFail            = "general.deleteFail"
	errProposalExists        = "bounty.proposal.exists"
	errBountyNotAvailable    = "bounty.notAvailable"
	errSteemAccountCreated   = "user-already-created-steem-account"
	errCouldNotCreateAccount = "could-not-create-account"
)

// respond wraps every success payload in the data envelope.
func respond(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, gin.H{"data": payload})
}

// clientError reports a categorical failure under the err key.
func clientError(c *gin.Context, status int, key string) {
	c.JSON(status, gin.H{"err": key})
}
