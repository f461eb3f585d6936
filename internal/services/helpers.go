package services

import (
	"encoding/json"

	"gorm.io/datatypes"
)

func encodeTags(tags []string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}

// knowledgeURLFor is the public path a stored knowledge document is
// addressed by in resource records and frontmatter links.
func knowledgeURLFor(filename string) string {
	return "/knowledge/" + filename
}

func decodeTags(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
