package session

//go:generate mockgen -destination=mocks/mock_navigator.go -package=mocks -source=navigator.go Navigator

// Navigator is the page the session lives on. CurrentURL is the full URL of
// that page; Navigate leaves it for target, which may be absolute or a path
// relative to the current origin.
type Navigator interface {
	CurrentURL() string
	Navigate(target string) error
}
