package svg

// textItem describes one <text> element. Most callers only need x/y/text
// plus an optional id/class; the error-message path additionally overrides
// color/size/anchor inline, since that text is drawn before the shared
// #title CSS rule exists (the error SVG has no <style> block at all).
type textItem struct {
	x, y   float64
	text   string
	id     string
	class  string
	color  string
	size   int
	anchor string
}

func writeText(x *xmlWriter, item textItem) {
	var attrsList []attr
	if item.id != "" {
		attrsList = append(attrsList, attr{"id", item.id})
	}
	if item.class != "" {
		attrsList = append(attrsList, attr{"class", item.class})
	}
	if item.color != "" {
		attrsList = append(attrsList, attr{"fill", item.color})
	}
	if item.size != 0 {
		attrsList = append(attrsList, attr{"font-size", itoa(item.size)})
	}
	if item.anchor != "" {
		attrsList = append(attrsList, attr{"text-anchor", item.anchor})
	}
	attrsList = append(attrsList, attr{"x", ftoa2(item.x)}, attr{"y", ftoa2(item.y)})

	x.startTag("text", attrsList)
	x.text(item.text)
	x.endTag("text")
}
