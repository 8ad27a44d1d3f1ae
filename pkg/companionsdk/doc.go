/*
Package companionsdk is a client SDK for the Companion travel platform API.

# SDKClient vs Session

The package is organized around two main types:

  - SDKClient: unauthenticated operations (login, sign up) and Session creation
  - Session: authenticated operations with automatic token refresh

Both read and write tokens through a tokenstore.Store:

	store := tokenstore.New(durableTier, memory.New())
	client, err := companionsdk.NewSDKClient(companionsdk.Config{
		BaseURL: "https://api.companion.example",
		Store:   store,
	})

	// Log in. remember=true keeps the tokens across restarts.
	session, err := client.Login(ctx, "kim@example.com", "s3cret!pw", true)

	// Or pick up a stored session.
	session, err = client.Resume(ctx)

# Automatic Token Refresh

Every Session request carries "Authorization: Bearer <access>". When the API
answers 401 the Session:

 1. joins the single in-flight refresh, or starts it when there is none
 2. replays the request once with the new access token
 3. on refresh failure clears the Token Store, fires Hooks.OnSessionExpired
    once and returns ErrSessionExpired

Concurrent 401s never produce more than one refresh call. A request that was
sent with a token that has since been rotated is replayed with the current
token without refreshing again.

Session.AccessToken refreshes proactively when the token's exp is within
Config.RefreshSkew. The chat connection uses it as its token source.

# Validation

SignUp and UpdateUser validate locally first and return a *ValidationError
without sending anything:

	_, err := client.SignUp(ctx, req)
	var verr *companionsdk.ValidationError
	if errors.As(err, &verr) {
		for field, msg := range verr.Fields {
			fmt.Printf("%s: %s\n", field, msg)
		}
	}

Non-2xx responses come back as *APIError.

# Session Organization

  - session.go: token access, refresh and logout
  - session_user.go, session_post.go, session_chat.go, ...: one file per API
    resource

# Thread Safety

SDKClient and Session are safe for concurrent use.
*/
package companionsdk
