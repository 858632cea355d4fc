package script

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the model on cast, format, and the annotation
// markup the downstream stages rely on. The schema description must
// stay in sync with the Script struct.
const systemPrompt = `あなたは2人組の掛け合い動画の放送作家です。与えられたテーマについて、以下の2人のキャラクターによる漫才風の解説対話を書いてください。

# キャラクター
- tsuno(ツノ): ボケ担当。毒舌で面倒くさがり。思い込みが激しく、話を雑にまとめたがる。
- megane(メガネ): ツッコミ担当。冷静で理屈っぽい。正確な知識でツノの誤解を訂正する。

# 対話の要件
- テーマについて視聴者が具体的な知識を持ち帰れる内容にすること。
- 15〜25往復(30〜50行)程度。1行は短く、話し言葉で。
- 導入でテーマを提示し、途中に意外な事実やあるあるを入れ、最後にオチをつけること。
- 各行に emotion を付けること。使える値: normal, happy, angry, sad, surprised
- 本筋に影響しない脱線行には "shorts_skip": true を付けること(縦動画が長すぎるとき省略される)。

# テキスト内の記法
- 読みが難しい語には 語<よみ> の形で読みを付けること。例: 凍結防止帯<とうけつぼうしたい>
- 画面にだけ表示し読み上げない補足は [[...]] で囲むこと。例: [[（※諸説あり）]]

# 出力形式
次のJSONだけを出力すること。コードブロックや説明文は不要。
{
  "meta": {"theme": "テーマ", "title": "動画タイトル(キャッチーに)"},
  "dialogue": [{"speaker": "tsuno", "text": "...", "emotion": "normal"}],
  "note_content": "テーマを整理した1000〜2000字程度のMarkdown記事。見出しと箇条書きを使うこと。",
  "x_post_content": "動画告知の投稿文。{youtube_url} を本文に含め、ハッシュタグ込みで140字以内。"
}`

// buildUserPrompt renders the per-run request for a topic.
func buildUserPrompt(topic string) string {
	return fmt.Sprintf("テーマ: %s\n\nこのテーマで対話を書いてください。", topic)
}

// buildRepairPrompt asks the model to fix its previous output. The
// parse or validation error is quoted verbatim so the model can see
// what broke.
func buildRepairPrompt(topic, previous string, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "テーマ: %s\n\n", topic)
	b.WriteString("前回の出力は次のエラーで受理できませんでした:\n")
	fmt.Fprintf(&b, "%v\n\n", cause)
	b.WriteString("前回の出力:\n")
	b.WriteString(previous)
	b.WriteString("\n\n指定したスキーマに厳密に従い、JSONのみを出力し直してください。")
	return b.String()
}
