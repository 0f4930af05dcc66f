package dynamic

import "github.com/onnwee/starwatch/bilibili"

// Action returns the human-readable verb phrase for item.
func Action(item bilibili.FeedItem) string {
	switch item.Kind {
	case bilibili.KindArticle:
		return "published a new article"
	case bilibili.KindVideo:
		return "uploaded a new video"
	case bilibili.KindForward:
		return "reposted a dynamic"
	default:
		return "posted a new dynamic"
	}
}

// URL returns the canonical link for item. Videos link to the video page when
// the bvid is known; everything else links to the dynamic itself.
func URL(item bilibili.FeedItem) string {
	if item.Kind == bilibili.KindVideo && item.VideoID != "" {
		return "https://www.bilibili.com/video/" + item.VideoID
	}
	return "https://t.bilibili.com/" + item.ID
}
