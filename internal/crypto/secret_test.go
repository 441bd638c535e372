package crypto

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerateSecretKey(t *testing.T) {
	Convey("Generated secret keys", t, func() {
		Convey("are 50 characters from the alphabet and never repeat", func() {
			seen := make(map[string]bool, 1000)
			for i := 0; i < 1000; i++ {
				key, err := GenerateSecretKey()
				So(err, ShouldBeNil)
				So(len(key), ShouldEqual, SecretKeyLength)
				for _, c := range key {
					So(strings.ContainsRune(SecretKeyAlphabet, c), ShouldBeTrue)
				}
				So(seen[key], ShouldBeFalse)
				seen[key] = true
			}
			So(len(seen), ShouldEqual, 1000)
		})

		Convey("fail when the random source is exhausted", func() {
			_, err := GenerateSecretKeyFrom(bytes.NewReader([]byte{1, 2, 3}))
			So(err, ShouldNotBeNil)
		})

		Convey("are deterministic for a fixed source", func() {
			src := bytes.Repeat([]byte{0}, 4096)
			a, err := GenerateSecretKeyFrom(bytes.NewReader(src))
			So(err, ShouldBeNil)
			b, err := GenerateSecretKeyFrom(bytes.NewReader(src))
			So(err, ShouldBeNil)
			So(a, ShouldEqual, b)
			So(a, ShouldEqual, strings.Repeat("a", SecretKeyLength))
		})
	})
}
