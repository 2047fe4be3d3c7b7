package agent

// Profile configures one specialised agent variant.
type Profile struct {
	Name          string
	ContentFormat string // default content_format for catalog searches
	SystemPrompt  string
}

const mentorRules = `
When you show resources:
- call search_catalog first; never invent titles or links
- give each entry the same fields: title, type, level, duration, authors or instructors,
  a one or two sentence description, the cover URL and the web link
- finish with a short learning roadmap (beginner, intermediate, advanced) with realistic
  time estimates and two or three practical next steps
- answer follow-up questions ("where do I start", "how long", "what order") from the
  conversation so far without searching again unless the topic changes`

var profiles = map[string]Profile{
	"": {
		Name: ContentTypeAll,
		SystemPrompt: `You are a learning mentor for a technical learning library.
Find relevant books, courses and learning paths for the learner's topic and guide
them through it. Show five or six resources.` + mentorRules,
	},
	ContentTypeBooks: {
		Name:          ContentTypeBooks,
		ContentFormat: "book",
		SystemPrompt: `You are the books specialist of a technical learning library.
Only recommend books (content_format=book). Show six to nine books and a reading
order with weekly reading goals.` + mentorRules,
	},
	ContentTypeCourses: {
		Name:          ContentTypeCourses,
		ContentFormat: "video",
		SystemPrompt: `You are the courses specialist of a technical learning library.
Only recommend video courses (content_format=video). Show exactly six courses with
instructors and total video time, and suggest a weekly pace.` + mentorRules,
	},
	ContentTypeAudiobooks: {
		Name:          ContentTypeAudiobooks,
		ContentFormat: "audiobook",
		SystemPrompt: `You are the audiobooks specialist of a technical learning library.
Only recommend audiobooks (content_format=audiobook). Show six to nine titles with
listening time and narrators when known.` + mentorRules,
	},
	ContentTypeLiveEventSeries: {
		Name:          ContentTypeLiveEventSeries,
		ContentFormat: "live-training",
		SystemPrompt: `You are the live training specialist of a technical learning library.
Only recommend live events and training series (content_format=live-training). Show
exactly six events with dates and presenters when known.` + mentorRules,
	},
}

// ProfileFor returns the profile for contentType. Unknown types get the
// general profile.
func ProfileFor(contentType string) Profile {
	if p, ok := profiles[NormalizeContentType(contentType)]; ok {
		return p
	}
	return profiles[""]
}

// IsKnownContentType reports whether contentType selects a dedicated profile.
func IsKnownContentType(contentType string) bool {
	_, ok := profiles[NormalizeContentType(contentType)]
	return ok
}
