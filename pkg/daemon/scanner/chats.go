package scanner

import (
	"os"
	"path/filepath"
	"runtime"
)

// chatCandidates lists where desktop chat clients keep their data on the
// current platform.
func chatCandidates(home string) []ChatCandidate {
	switch runtime.GOOS {
	case "darwin":
		containers := filepath.Join(home, "Library", "Containers")
		return []ChatCandidate{
			{App: "WeChat", Path: filepath.Join(containers, "com.tencent.xinWeChat/Data/Library/Application Support/com.tencent.xinWeChat")},
			{App: "WeCom", Path: filepath.Join(containers, "com.tencent.WeWorkMac/Data/Library/Application Support/WXWork")},
			{App: "DingTalk", Path: filepath.Join(containers, "com.alibaba.DingTalkMac/Data/Library/Application Support")},
		}
	case "windows":
		profile := os.Getenv("USERPROFILE")
		if profile == "" {
			return []ChatCandidate{}
		}
		return []ChatCandidate{
			{App: "WeChat", Path: filepath.Join(profile, "Documents", "WeChat Files")},
			{App: "WeChat", Path: filepath.Join(profile, "AppData", "Roaming", "Tencent", "WeChat")},
			{App: "WeCom", Path: filepath.Join(profile, "AppData", "Roaming", "WXWork")},
			{App: "DingTalk", Path: filepath.Join(profile, "AppData", "Roaming", "DingTalk")},
		}
	default:
		return []ChatCandidate{}
	}
}
