package companionsdk

import "time"

// ============================================================================
// Auth
// ============================================================================

// TokenPair is the body of the login and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ============================================================================
// Users
// ============================================================================

// SignUpRequest is the body of POST /api/users.
type SignUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Nickname     string `json:"nickname"`
	Phone        string `json:"phone"`
	Name         string `json:"name,omitempty"`
	Gender       string `json:"gender,omitempty"`
	BirthDate    string `json:"birthDate,omitempty"`
	Introduction string `json:"introduction,omitempty"`
}

// UpdateUserRequest changes only the non-nil fields.
type UpdateUserRequest struct {
	Nickname     *string `json:"nickname,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Password     *string `json:"password,omitempty"`
	Introduction *string `json:"introduction,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

type User struct {
	ID           int64     `json:"userId"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname"`
	Name         string    `json:"name,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Gender       string    `json:"gender,omitempty"`
	BirthDate    string    `json:"birthDate,omitempty"`
	Introduction string    `json:"introduction,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	Rating       float64   `json:"rating,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

// ============================================================================
// Chats
// ============================================================================

type ChatRoom struct {
	ID            int64     `json:"chatRoomId"`
	Name          string    `json:"roomName"`
	PostID        int64     `json:"postId,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt,omitzero"`
	MemberCount   int       `json:"memberCount,omitempty"`
}

type ChatMember struct {
	UserID       int64  `json:"userId"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// ============================================================================
// Posts
// ============================================================================

// Page is one page of a paged listing.
type Page[T any] struct {
	Content       []T  `json:"content"`
	Number        int  `json:"number"`
	Size          int  `json:"size"`
	TotalElements int  `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	Last          bool `json:"last"`
}

type Post struct {
	ID             int64     `json:"postId"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	RegionID       int64     `json:"regionId,omitempty"`
	AuthorID       int64     `json:"userId"`
	AuthorNickname string    `json:"nickname,omitempty"`
	StartDate      string    `json:"startDate,omitempty"`
	EndDate        string    `json:"endDate,omitempty"`
	MaxMembers     int       `json:"maxMembers,omitempty"`
	CurrentMembers int       `json:"currentMembers,omitempty"`
	Status         string    `json:"status,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
}

type PostRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	RegionID   int64  `json:"regionId,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	MaxMembers int    `json:"maxMembers,omitempty"`
}

// ============================================================================
// Applications
// ============================================================================

type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "PENDING"
	ApplicationAccepted  ApplicationStatus = "ACCEPTED"
	ApplicationRejected  ApplicationStatus = "REJECTED"
	ApplicationCancelled ApplicationStatus = "CANCELLED"
)

type Application struct {
	ID                int64             `json:"applicationId"`
	PostID            int64             `json:"postId"`
	ApplicantID       int64             `json:"userId"`
	ApplicantNickname string            `json:"nickname,omitempty"`
	Message           string            `json:"message,omitempty"`
	Status            ApplicationStatus `json:"status"`
	CreatedAt         time.Time         `json:"createdAt,omitzero"`
}

// ============================================================================
// Reviews
// ============================================================================

type Review struct {
	ID         int64     `json:"reviewId"`
	ReviewerID int64     `json:"reviewerId"`
	RevieweeID int64     `json:"revieweeId"`
	PostID     int64     `json:"postId,omitempty"`
	Rating     int       `json:"rating"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

type ReviewRequest struct {
	RevieweeID int64  `json:"revieweeId"`
	PostID     int64  `json:"postId,omitempty"`
	Rating     int    `json:"rating"`
	Content    string `json:"content"`
}

// ============================================================================
// Planners
// ============================================================================

type Planner struct {
	ID        int64          `json:"plannerId"`
	UserID    int64          `json:"userId"`
	Title     string         `json:"title"`
	StartDate string         `json:"startDate,omitempty"`
	EndDate   string         `json:"endDate,omitempty"`
	Places    []PlannerPlace `json:"places,omitempty"`
}

// PlannerPlace is one stop in an itinerary. Day is 1-based and Order sorts
// stops within a day.
type PlannerPlace struct {
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Day       int     `json:"day"`
	Order     int     `json:"order"`
}

type PlannerRequest struct {
	Title     string         `json:"title"`
	StartDate string         `json:"startDate,omitempty"`
	EndDate   string         `json:"endDate,omitempty"`
	Places    []PlannerPlace `json:"places,omitempty"`
}

// ============================================================================
// Follow, notifications, regions
// ============================================================================

type FollowUser struct {
	UserID       int64  `json:"userId"`
	Nickname     string `json:"nickname"`
	ProfileImage string `json:"profileImage,omitempty"`
}

type Notification struct {
	ID        int64     `json:"notificationId"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	TargetID  int64     `json:"targetId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

type Region struct {
	ID       int64  `json:"regionId"`
	Name     string `json:"name"`
	ParentID int64  `json:"parentId,omitempty"`
}
