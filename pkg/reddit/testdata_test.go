package reddit

import (
	"encoding/json"
	"fmt"
)

func linkJSON(id string, created float64) map[string]interface{} {
	return map[string]interface{}{
		"kind": "t3",
		"data": map[string]interface{}{
			"id":              id,
			"title":           "title " + id,
			"selftext":        "body " + id,
			"author":          "author_" + id,
			"created_utc":     created,
			"score":           7,
			"num_comments":    2,
			"link_flair_text": nil,
		},
	}
}

func listingJSON(after string, children ...map[string]interface{}) string {
	var afterVal interface{}
	if after != "" {
		afterVal = after
	}
	if children == nil {
		children = []map[string]interface{}{}
	}
	b, _ := json.Marshal(map[string]interface{}{
		"kind": "Listing",
		"data": map[string]interface{}{"after": afterVal, "children": children},
	})
	return string(b)
}

func commentJSON(id, parent, author string, created float64, replies ...map[string]interface{}) map[string]interface{} {
	var r interface{} = ""
	if len(replies) > 0 {
		r = map[string]interface{}{
			"kind": "Listing",
			"data": map[string]interface{}{"after": nil, "children": replies},
		}
	}
	return map[string]interface{}{
		"kind": "t1",
		"data": map[string]interface{}{
			"id":          id,
			"parent_id":   parent,
			"body":        "comment " + id,
			"author":      author,
			"created_utc": created,
			"score":       1,
			"replies":     r,
		},
	}
}

func moreJSON(id, parent string, children ...string) map[string]interface{} {
	if children == nil {
		children = []string{}
	}
	return map[string]interface{}{
		"kind": "more",
		"data": map[string]interface{}{
			"id":        id,
			"parent_id": parent,
			"count":     len(children),
			"children":  children,
		},
	}
}

func threadJSON(postID string, roots ...map[string]interface{}) string {
	post := listingJSON("", linkJSON(postID, 1735700000))
	return fmt.Sprintf("[%s,%s]", post, listingJSON("", roots...))
}
