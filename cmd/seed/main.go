// Command seed fills a development database with fake hosts, casts, posts,
// applications and messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/tanakadamon1/castchat-sub000/internal/application"
	"github.com/tanakadamon1/castchat-sub000/internal/category"
	"github.com/tanakadamon1/castchat-sub000/internal/config"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/message"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/post"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

var nonUsername = regexp.MustCompile(`[^a-z0-9_]`)

var (
	platforms = []string{"pc", "quest", "ios", "android"}
	languages = []string{"ja", "en", "ko", "zh"}
	tagPool   = []string{"dance", "music", "roleplay", "talk", "photo", "event", "beginner", "horror", "bar", "idol"}
)

func main() {
	users := flag.Int("users", 20, "number of users")
	posts := flag.Int("posts", 30, "number of posts")
	seed := flag.Int64("seed", 0, "random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logs.LogJSON("FATAL", "Invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if cfg.IsProduction() {
		logs.LogJSON("FATAL", "Refusing to seed a production database", nil)
		os.Exit(1)
	}
	if err := database.Connect(cfg.DBUrl, false); err != nil {
		logs.LogJSON("FATAL", "Database connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer database.Close()

	faker := gofakeit.New(*seed)
	ctx := context.Background()

	actors, err := seedUsers(ctx, faker, *users)
	if err != nil {
		logs.LogJSON("FATAL", "Seeding users failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	var cats []category.Category
	if err := database.DB.WithContext(ctx).Where("is_active = ?", true).Find(&cats).Error; err != nil {
		logs.LogJSON("FATAL", "Loading categories failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	created, err := seedPosts(ctx, faker, actors, cats, *posts)
	if err != nil {
		logs.LogJSON("FATAL", "Seeding posts failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	apps, msgs := seedApplications(ctx, faker, actors, created)

	logs.LogJSON("INFO", "Seed complete", map[string]interface{}{
		"users":        len(actors),
		"posts":        len(created),
		"applications": apps,
		"messages":     msgs,
	})
}

func seedUsers(ctx context.Context, faker *gofakeit.Faker, n int) ([]permission.Actor, error) {
	actors := make([]permission.Actor, 0, n)
	for i := 0; i < n; i++ {
		name := nonUsername.ReplaceAllString(strings.ToLower(faker.FirstName()), "")
		if len(name) > 12 {
			name = name[:12]
		}
		u := &user.User{
			ID:          uuid.New().String(),
			Username:    fmt.Sprintf("%s_%d", name, i),
			DisplayName: faker.Name(),
			Email:       fmt.Sprintf("seed%d.%s", i, faker.Email()),
			Bio:         faker.Sentence(12),
			Coins:       faker.Number(0, 500),
		}
		if i == 0 {
			u.Role = permission.RoleAdmin
		}
		if err := user.Create(ctx, u); err != nil {
			return nil, err
		}
		actors = append(actors, permission.Actor{UserID: u.ID, Role: u.Role})
	}
	return actors, nil
}

func pick(faker *gofakeit.Faker, pool []string, upTo int) []string {
	n := faker.Number(1, upTo)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, pool[faker.Number(0, len(pool)-1)])
	}
	return out
}

func seedPosts(ctx context.Context, faker *gofakeit.Faker, actors []permission.Actor, cats []category.Category, n int) ([]*post.Post, error) {
	created := make([]*post.Post, 0, n)
	for i := 0; i < n; i++ {
		host := actors[faker.Number(0, len(actors)-1)]

		title := strings.TrimSuffix(faker.Sentence(5), ".")
		desc := faker.Paragraph(2, 3, 12, " ")
		req := faker.Sentence(10)
		slots := faker.Number(1, 8)
		deadline := time.Now().Add(time.Duration(faker.Number(24, 24*21)) * time.Hour)
		event := deadline.Add(time.Duration(faker.Number(2, 72)) * time.Hour)
		plats := pick(faker, platforms, 3)
		langs := pick(faker, languages, 2)
		tags := pick(faker, tagPool, 4)

		in := post.Input{
			Title:           &title,
			Description:     &desc,
			Requirements:    &req,
			MaxParticipants: &slots,
			Deadline:        &deadline,
			EventDate:       &event,
			Platforms:       &plats,
			Languages:       &langs,
			Tags:            &tags,
		}
		if len(cats) > 0 {
			id := cats[faker.Number(0, len(cats)-1)].ID
			in.CategoryID = &id
		}

		p, err := post.Create(ctx, host, in)
		if err != nil {
			return nil, err
		}
		created = append(created, p)
	}
	return created, nil
}

// seedApplications has a few casts apply to each post. Failures such as a
// full post are expected and skipped.
func seedApplications(ctx context.Context, faker *gofakeit.Faker, actors []permission.Actor, posts []*post.Post) (apps, msgs int) {
	for _, p := range posts {
		host := permission.Actor{UserID: p.UserID, Role: permission.RoleUser}
		for _, a := range actors {
			if a.UserID == p.UserID {
				host.Role = a.Role
			}
		}

		applicants := faker.Number(0, 4)
		for j := 0; j < applicants; j++ {
			cast := actors[faker.Number(0, len(actors)-1)]
			app, err := application.Apply(ctx, cast, p.ID, faker.Sentence(8))
			if err != nil {
				continue
			}
			apps++

			if faker.Bool() {
				if _, err := application.UpdateStatus(ctx, host, app.ID, application.StatusAccepted, ""); err != nil {
					continue
				}
			}

			replies := faker.Number(0, 5)
			for k := 0; k < replies; k++ {
				from := cast
				if k%2 == 1 {
					from = host
				}
				if _, err := message.Send(ctx, from, app.ID, faker.Sentence(6)); err == nil {
					msgs++
				}
			}
		}
	}
	return apps, msgs
}
