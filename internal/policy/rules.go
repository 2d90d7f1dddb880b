package policy

import (
	"github.com/anonto42/folio/backend/internal/docstore"
)

func parent(collection, name string) func(map[string]string) string {
	return func(v map[string]string) string { return docstore.Join(collection, v[name]) }
}

// contentRules covers a top-level content collection (books, reels) with its
// likes and comments.
func contentRules(collection string, counters ...string) []Rule {
	owner := parent(collection, "id")
	comment := func(v map[string]string) string { return docstore.Join(collection, v["id"], "comments", v["comment"]) }
	return []Rule{
		Rule{
			Pattern: collection + "/{id}",
			Create:  AllOf(DataIs("authorId"), FieldIn("status", "draft")),
			Update: AnyOf(
				AllOf(ExistingIs("authorId"), FieldIn("status", "draft", "pending_review")),
				OnlyFields(counters...),
				Admin,
			),
			Delete: AnyOf(ExistingIs("authorId"), Admin),
		}.Read(Public),
		Rule{
			Pattern: collection + "/{id}/likes/{uid}",
			Create:  Is("uid"),
			Update:  Is("uid"),
			Delete:  AnyOf(Is("uid"), OwnerOf(owner, "authorId"), Admin),
		}.Read(Public),
		Rule{
			Pattern: collection + "/{id}/comments/{comment}",
			Create:  DataIs("authorId"),
			Update:  AnyOf(AllOf(ExistingIs("authorId"), ExceptFields("authorId", "replyCount", "likeCount")), OnlyFields("replyCount", "likeCount")),
			Delete:  AnyOf(ExistingIs("authorId"), OwnerOf(owner, "authorId"), Admin),
		}.Read(Public),
		Rule{
			Pattern: collection + "/{id}/comments/{comment}/likes/{uid}",
			Create:  Is("uid"),
			Update:  Is("uid"),
			Delete:  AnyOf(Is("uid"), OwnerOf(comment, "authorId"), OwnerOf(owner, "authorId"), Admin),
		}.Read(Public),
		Rule{
			Pattern: collection + "/{id}/chapters/{chapter}",
			Create:  OwnerOf(owner, "authorId"),
			Update:  OwnerOf(owner, "authorId"),
			Delete:  AnyOf(OwnerOf(owner, "authorId"), Admin),
		}.Read(Public),
	}
}

// Default returns the application's access rules. store must be the
// unguarded store so rule lookups are not themselves checked.
func Default(store docstore.Store) *Policy {
	chat := parent("chats", "chat")
	story := parent("stories", "story")

	rules := []Rule{
		Rule{
			Pattern: "users/{uid}",
			Create:  Is("uid"),
			Update: AnyOf(
				AllOf(Is("uid"), ExceptFields("role", "followerCount", "followingCount")),
				OnlyFields("followerCount", "followingCount"),
			),
			Delete: AnyOf(Is("uid"), Admin),
		}.Read(Public),
		Rule{
			Pattern: "users/{uid}/favorites/{book}",
			Create:  AllOf(Is("uid"), DataIs("userId")),
			Update:  Is("uid"),
			Delete:  Is("uid"),
		}.Read(Is("uid")),
		Rule{Pattern: "users/{uid}/following/{target}"}.Read(Authenticated).Write(Is("uid")),
		Rule{Pattern: "users/{uid}/followers/{follower}"}.Read(Authenticated).Write(Is("follower")),
		Rule{
			Pattern: "users/{uid}/notifications/{id}",
			Create:  AllOf(IsNot("uid"), DataIs("actor.id")),
			Update:  AllOf(Is("uid"), OnlyFields("read")),
			Delete:  Is("uid"),
		}.Read(Is("uid")),
		Rule{
			Pattern: "users/{uid}/settings/{doc}",
			Get:     Authenticated,
			List:    Is("uid"),
		}.Write(Is("uid")),
		Rule{Pattern: "presence/{uid}"}.Read(Authenticated).Write(Is("uid")),
		Rule{
			Pattern: "chats/{chat}",
			Get:     AnyOf(MemberOf(chat, "participants"), Absent(chat)),
			List:    Authenticated,
			Create:  DataMember("participants"),
			Update:  AllOf(ExistingMember("participants"), OnlyFields("lastMessage", "unreadCounts", "updatedAt")),
		},
		Rule{
			Pattern: "chats/{chat}/messages/{id}",
			Create:  AllOf(MemberOf(chat, "participants"), DataIs("senderId")),
		}.Read(MemberOf(chat, "participants")),
		Rule{
			Pattern: "stories/{id}",
			Create:  DataIs("authorId"),
			Update:  OnlyFields("viewCount"),
			Delete:  AnyOf(ExistingIs("authorId"), Admin),
		}.Read(Authenticated),
		Rule{
			Pattern: "stories/{story}/views/{uid}",
			Create:  Is("uid"),
			Update:  Is("uid"),
			Delete:  AnyOf(Is("uid"), OwnerOf(story, "authorId"), Admin),
		}.Read(Authenticated),
	}
	rules = append(rules, contentRules("books", "likeCount", "favoriteCount", "commentCount", "viewCount")...)
	rules = append(rules, contentRules("reels", "likeCount", "commentCount", "viewCount")...)
	return New(store, rules...)
}
