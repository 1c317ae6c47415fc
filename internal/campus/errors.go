package campus

import "fmt"

// AuthError reports a failure to establish a session.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "campus auth: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// QueryError reports a balance lookup failure after authentication.
type QueryError struct {
	Room string
	Err  error
}

func (e *QueryError) Error() string {
	if e.Room == "" {
		return "campus query: " + e.Err.Error()
	}
	return fmt.Sprintf("campus query room %s: %v", e.Room, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
