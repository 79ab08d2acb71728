package codec

import "github.com/lanikai/vidlink/internal/logging"

var log = logging.DefaultLogger.WithTag("codec")
