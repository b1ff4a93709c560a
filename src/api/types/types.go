package types

import "time"

// Platform users
type User struct {
	ID                     uint64 `gorm:"primaryKey"`
	Username               string `gorm:"size:32;unique;not null"`
	AvatarURL              string `gorm:"size:256"`
	Job                    string `gorm:"size:128"`
	Reputation             int32  `gorm:"default:0"`
	HasCreatedSteemAccount bool   `gorm:"default:false"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
	BlockchainAccounts     []BlockchainAccount `gorm:"foreignKey:UserID"`
}

// Linked blockchain accounts. Uniqueness of (user, blockchain, address) is
// enforced at the application level, the index backs it up.
type BlockchainAccount struct {
	ID           uint64 `gorm:"primaryKey"`
	UserID       uint64 `gorm:"uniqueIndex:idx_user_chain_addr;not null"`
	Blockchain   string `gorm:"uniqueIndex:idx_user_chain_addr;size:32;not null"`
	Address      string `gorm:"uniqueIndex:idx_user_chain_addr;size:64;not null"`
	Active       bool   `gorm:"default:false"`
	AccessToken  string `gorm:"size:1024"` // encrypted
	RefreshToken string `gorm:"size:1024"` // encrypted
	CreatedAt    time.Time
	User         User `gorm:"foreignKey:UserID"`
}

// Bounty categories
type Category struct {
	Key    string `gorm:"primaryKey;size:64"`
	Name   string `gorm:"size:128"`
	Active bool   `gorm:"default:true"`
}

// Bounty statuses
const (
	BountyOpen       = "open"
	BountyInProgress = "inProgress"
	BountyCompleted  = "completed"
	BountyCancelled  = "cancelled"
)

// Bounties
type Bounty struct {
	ID          uint64 `gorm:"primaryKey"`
	AuthorID    uint64 `gorm:"index;not null"`
	Title       string `gorm:"size:255;not null"`
	Body        string `gorm:"type:text;not null"`
	Lang        string `gorm:"size:8"`
	Category    string `gorm:"size:64;not null"`
	Status      string `gorm:"size:16;default:open"`
	Slug        string `gorm:"size:255;index;not null"`
	Issue       string `gorm:"size:512"`
	Deadline    *time.Time
	AssigneeID  *uint64
	EscrowID    *uint64
	EscrowFrom  string `gorm:"size:64"`
	EscrowTo    string `gorm:"size:64"`
	EscrowAgent string `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Author      User             `gorm:"foreignKey:AuthorID"`
	Assignee    *User            `gorm:"foreignKey:AssigneeID"`
	Amounts     []BountyAmount   `gorm:"foreignKey:BountyID"`
	Slugs       []BountySlug     `gorm:"foreignKey:BountyID"`
	Skills      []BountySkill    `gorm:"foreignKey:BountyID"`
	Activity    []BountyActivity `gorm:"foreignKey:BountyID"`
	Blockchains []BountyChain    `gorm:"foreignKey:BountyID"`
}

// Bounty amounts. Amount is a 3-decimal fixed point string; one sbd row
// per bounty today, rows so a bounty can later carry several currencies.
type BountyAmount struct {
	ID       uint64 `gorm:"primaryKey"`
	BountyID uint64 `gorm:"index;not null"`
	Amount   string `gorm:"type:decimal(16,3);not null"`
	Currency string `gorm:"size:8;not null"`
}

// Historical slugs, append-only
type BountySlug struct {
	ID       uint64 `gorm:"primaryKey"`
	BountyID uint64 `gorm:"index;not null"`
	Slug     string `gorm:"size:255;index;not null"`
}

// Skills attached to a bounty
type BountySkill struct {
	ID       uint64 `gorm:"primaryKey"`
	BountyID uint64 `gorm:"index;not null"`
	Skill    string `gorm:"size:64;index;not null"`
}

// Activity feed entries, append-only
type BountyActivity struct {
	ID        uint64 `gorm:"primaryKey"`
	BountyID  uint64 `gorm:"index;not null"`
	UserID    uint64 `gorm:"not null"`
	Key       string `gorm:"size:32;not null"`
	Color     string `gorm:"size:16"`
	Icon      string `gorm:"size:64"`
	Data      string `gorm:"type:json"`
	CreatedAt time.Time
	User      User `gorm:"foreignKey:UserID"`
}

// Per-blockchain publication data, one row per blockchain name
type BountyChain struct {
	ID        uint64 `gorm:"primaryKey"`
	BountyID  uint64 `gorm:"uniqueIndex:idx_bounty_chain;not null"`
	Name      string `gorm:"uniqueIndex:idx_bounty_chain;size:32;not null"`
	Data      string `gorm:"type:json"`
	UpdatedAt time.Time
}

// Proposals, one per (author, bounty)
type Proposal struct {
	ID        uint64 `gorm:"primaryKey"`
	AuthorID  uint64 `gorm:"uniqueIndex:idx_author_bounty;not null"`
	BountyID  uint64 `gorm:"uniqueIndex:idx_author_bounty;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Author    User   `gorm:"foreignKey:AuthorID"`
	Bounty    Bounty `gorm:"foreignKey:BountyID"`
}

// Votes on platform objects, read-only from this service
type Vote struct {
	ID        uint64 `gorm:"primaryKey"`
	ObjRef    string `gorm:"uniqueIndex:idx_obj_user;size:32;not null"`
	ObjID     uint64 `gorm:"uniqueIndex:idx_obj_user;not null"`
	UserID    uint64 `gorm:"uniqueIndex:idx_obj_user;not null"`
	Dir       int16  `gorm:"not null"`
	CreatedAt time.Time
}

// Key/value settings
type Setting struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"size:512"`
}
