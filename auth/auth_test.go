package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

type memUsers map[string]string

func (m memUsers) UserByName(_ context.Context, username string) (*models.User, error) {
	hash, ok := m[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.User{Username: username, Password: hash}, nil
}

type brokenUsers struct{}

func (brokenUsers) UserByName(context.Context, string) (*models.User, error) {
	return nil, errors.New("database is closed")
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestParseAuthorization(t *testing.T) {
	Convey("Given Authorization header values", t, func() {
		So(ParseAuthorization(basic("username", "password")), ShouldResemble, Credentials{Username: "username", Password: "password"})
		So(ParseAuthorization("Bearer abc.def.ghi"), ShouldResemble, Credentials{Token: "abc.def.ghi"})
		So(ParseAuthorization("bearer  abc "), ShouldResemble, Credentials{Token: "abc"})
		So(ParseAuthorization("").Empty(), ShouldBeTrue)
		So(ParseAuthorization("Basic !!!").Empty(), ShouldBeTrue)
		So(ParseAuthorization("Basic "+base64.StdEncoding.EncodeToString([]byte("nocolon"))).Empty(), ShouldBeTrue)
		So(ParseAuthorization("Digest x").Empty(), ShouldBeTrue)
	})
}

func TestAuthenticator(t *testing.T) {
	Convey("Given a stored writer", t, func() {
		ctx := context.Background()
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
		So(err, ShouldBeNil)
		a := NewAuthenticator(memUsers{"username": string(hash)}, []byte("key"))

		Convey("Correct basic credentials authenticate", func() {
			name, err := a.Authenticate(ctx, Credentials{Username: "username", Password: "password"})
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "username")
		})

		Convey("Wrong, unknown or missing credentials are unauthorized", func() {
			_, err := a.Authenticate(ctx, Credentials{Username: "username", Password: "nope"})
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
			_, err = a.Authenticate(ctx, Credentials{Username: "ghost", Password: "password"})
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
			_, err = a.Authenticate(ctx, Credentials{})
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
		})

		Convey("SignIn issues a token that authenticates", func() {
			token, err := a.SignIn(ctx, " username ", "password")
			So(err, ShouldBeNil)
			name, err := a.Authenticate(ctx, Credentials{Token: token})
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "username")

			Convey("A token signed with another key is rejected", func() {
				other := NewAuthenticator(memUsers{}, []byte("other"))
				_, err := other.Authenticate(ctx, Credentials{Token: token})
				So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
			})

			Convey("An expired token is rejected", func() {
				a.now = func() time.Time { return time.Now().Add(TokenTTL + time.Hour) }
				_, err := a.Authenticate(ctx, Credentials{Token: token})
				So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
			})
		})

		Convey("SignIn with a bad password fails", func() {
			_, err := a.SignIn(ctx, "username", "bad")
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
		})

		Convey("A failing user lookup is not reported as bad credentials", func() {
			broken := NewAuthenticator(brokenUsers{}, []byte("key"))
			_, err := broken.Authenticate(ctx, Credentials{Username: "username", Password: "password"})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrUnauthorized), ShouldBeFalse)
		})

		Convey("Garbage tokens are rejected", func() {
			_, err := a.Authenticate(ctx, Credentials{Token: "not-a-jwt"})
			So(errors.Is(err, ErrUnauthorized), ShouldBeTrue)
		})
	})
}

func TestHashPassword(t *testing.T) {
	Convey("Given HashPassword", t, func() {
		_, err := HashPassword("", "x")
		So(err, ShouldNotBeNil)
		_, err = HashPassword("x", " ")
		So(err, ShouldNotBeNil)

		hash, err := HashPassword("reader1", "secret")
		So(err, ShouldBeNil)
		So(bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")), ShouldBeNil)
		So(UserHashFromUsername(" Reader1 ", []byte("k")), ShouldEqual, UserHashFromUsername("reader1", []byte("k")))
	})
}
