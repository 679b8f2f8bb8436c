package repo

import "time"

// Setting keys written by the admin surface and read by the bot core.
const (
	KeyBotToken       = "bot_token"
	KeyChannelID      = "channel_id"
	KeyWelcomeMessage = "welcome_message"
	KeyBtnSearchText  = "btn_search_text"
	KeyBtnCodeText    = "btn_code_text"
	KeyBtnCatText     = "btn_cat_text"
	KeyBtnCartText    = "btn_cart_text"
	KeyBtnSignupText  = "btn_signup_text"
	KeyBotDescription = "bot_description"
)

// BotUser represents a registered end user of the storefront bot.
type BotUser struct {
	ID           string
	ChatID       int64
	DisplayName  *string
	PhoneNumber  *string
	Username     *string
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// BotUserProfile carries data used to upsert a bot user.
type BotUserProfile struct {
	ChatID      int64
	DisplayName *string
	PhoneNumber *string
	Username    *string
}

// Product represents a catalog item owned by the admin surface.
type Product struct {
	ID          string
	Code        *string
	Name        string
	Category    *string
	Price       int64
	Stock       int
	Description string
	ImageRef    string
	CreatedAt   time.Time
}

// Category is derived from the distinct product categories.
type Category struct {
	Name  string
	Count int
}
