package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide explains how to obtain an OAuth bearer token for the listing API
func ShowTokenGuide(w io.Writer) {
	line := strings.Repeat("=", 72)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "REDDIT API TOKEN")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "subarchive calls https://oauth.reddit.com with a bearer token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Create a \"script\" app at https://www.reddit.com/prefs/apps")
	fmt.Fprintln(w, "   and note its client id and secret.")
	fmt.Fprintln(w, "2. Request a token:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "   curl -A 'subarchive/1.0 by <your-username>' \\")
	fmt.Fprintln(w, "        -u '<client-id>:<client-secret>' \\")
	fmt.Fprintln(w, "        -d 'grant_type=password&username=<user>&password=<pass>' \\")
	fmt.Fprintln(w, "        https://www.reddit.com/api/v1/access_token")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "3. Paste the access_token value when prompted.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tokens expire after about an hour. Use the same user agent you")
	fmt.Fprintln(w, "registered the app with; Reddit throttles generic agents.")
	fmt.Fprintln(w, line)
}
