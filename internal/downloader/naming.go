package downloader

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/filesystem"
	"github.com/NamanBalaji/vodbatch/internal/repository"
)

const (
	dateLayout       = "2006-01-02"
	defaultVideoType = "Archive"
)

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID rejects ids that are unsafe in a command line or file name.
func ValidateID(id string) error {
	if !idRe.MatchString(id) {
		return errors.NewInputError(errors.ErrInvalidIdentifier, id)
	}
	return nil
}

// FileURL is the retrieval path for a finished id.
func FileURL(id string) string {
	return "/api/videos/" + url.PathEscape(id) + "/file"
}

// DisplayName sanitizes filename, falls back to id when nothing usable is
// left, then appends the date and the type suffix in that order.
func DisplayName(id, filename string, opts repository.Options, now time.Time) (string, repository.Options) {
	name := filesystem.Sanitize(filename)
	if strings.Trim(name, ".") == "" {
		name = id
	}

	if opts.IncludeDate {
		opts.Date = now.UTC().Format(dateLayout)
		name += "-" + opts.Date
	}

	if opts.IncludeType {
		videoType := filesystem.Sanitize(opts.VideoType)
		if videoType == "" {
			videoType = defaultVideoType
		}
		opts.VideoType = videoType
		name += "-" + videoType
	}

	return name, opts
}
