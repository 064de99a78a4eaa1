package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/convex-doctor/internal/model"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	schema := &model.FileFacts{
		Path: "convex/schema.ts",
		Indexes: []model.IndexFact{
			{File: "convex/schema.ts", Table: "posts", Name: "by_author", Fields: []string{"authorId"}},
		},
		References: []model.ReferenceField{
			{File: "convex/schema.ts", Table: "posts", Field: "authorId", ReferencedTable: "users"},
		},
	}
	extra := &model.FileFacts{
		Path: "convex/tables/users.ts",
		Indexes: []model.IndexFact{
			{File: "convex/tables/users.ts", Table: "users", Name: "by_email", Fields: []string{"email"}},
		},
	}
	posts := &model.FileFacts{
		Path:         "convex/posts.ts",
		FilterFields: []model.FilterField{{File: "convex/posts.ts", Table: "posts", Field: "status"}},
	}

	flags := model.ProjectFlags{HasSchema: true, NodeVersion: "20"}
	p := Merge([]*model.FileFacts{schema, nil, extra, posts}, flags)

	assert.Equal(t, flags, p.ProjectFlags)
	require.Len(t, p.Indexes, 2)
	assert.Equal(t, "by_author", p.Indexes[0].Name)
	assert.Equal(t, "by_email", p.Indexes[1].Name)
	assert.Len(t, p.References, 1)
	assert.Len(t, p.FilterFields, 1)
	assert.False(t, p.UsesAuth)
}

func TestMergeUsesAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file *model.FileFacts
		want bool
	}{
		{
			name: "auth call",
			file: &model.FileFacts{Calls: []model.CallFact{{Chain: "ctx.auth.getUserIdentity"}}},
			want: true,
		},
		{
			name: "auth helper",
			file: &model.FileFacts{Functions: []model.FunctionFact{{Name: "me", HasAuthCheck: true}}},
			want: true,
		},
		{
			name: "unrelated calls",
			file: &model.FileFacts{Calls: []model.CallFact{{Chain: "ctx.db.get"}, {Chain: "auth.check"}}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Merge([]*model.FileFacts{tt.file}, model.ProjectFlags{})
			assert.Equal(t, tt.want, p.UsesAuth)
		})
	}
}

func TestMergeEmpty(t *testing.T) {
	t.Parallel()

	p := Merge(nil, model.ProjectFlags{HasConvexJSON: true})
	require.NotNil(t, p)
	assert.True(t, p.HasConvexJSON)
	assert.Empty(t, p.Indexes)
	assert.False(t, p.UsesAuth)
}
