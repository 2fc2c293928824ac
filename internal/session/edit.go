package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/neexbeast/museum-checkin/internal/checkin"
)

func (c *Controller) beginEdit() error {
	if !c.state.editable() {
		return fmt.Errorf("editing in state %s: %w", c.state, ErrNotReady)
	}
	c.state = Editing
	return nil
}

// AddPhotos appends a batch of photos. A batch that would take the total
// past checkin.MaxPhotos is rejected whole.
func (c *Controller) AddPhotos(paths ...string) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	if len(c.form.Photos)+len(paths) > checkin.MaxPhotos {
		c.notify.Toast(fmt.Sprintf("最多添加%d张照片", checkin.MaxPhotos))
		return fmt.Errorf("adding %d photos to %d: %w", len(paths), len(c.form.Photos), ErrPhotoLimit)
	}
	_ = c.beginEdit()
	c.form.Photos = append(c.form.Photos, paths...)
	return nil
}

// RemovePhoto removes the photo at index i.
func (c *Controller) RemovePhoto(i int) error {
	return c.removeAt(&c.form.Photos, i, "photo")
}

// SetFeeling replaces the feeling text.
func (c *Controller) SetFeeling(text string) error {
	if err := c.beginEdit(); err != nil {
		return err
	}
	c.form.Feeling = text
	return nil
}

// SetRating sets a 1-5 rating.
func (c *Controller) SetRating(r int) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	if r < 1 || r > 5 {
		return fmt.Errorf("rating %d: %w", r, ErrInvalidInput)
	}
	_ = c.beginEdit()
	c.form.Rating = r
	c.notify.Toast("评分：" + checkin.RatingLabel(r))
	return nil
}

// SelectMood sets the mood to one of checkin.MoodOptions.
func (c *Controller) SelectMood(v string) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	if !checkin.IsMood(v) {
		return fmt.Errorf("mood %q: %w", v, ErrInvalidInput)
	}
	_ = c.beginEdit()
	c.form.Mood = v
	return nil
}

// SelectWeather sets the weather to one of checkin.WeatherOptions.
func (c *Controller) SelectWeather(v string) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	if !checkin.IsWeather(v) {
		return fmt.Errorf("weather %q: %w", v, ErrInvalidInput)
	}
	_ = c.beginEdit()
	c.form.Weather = v
	return nil
}

// AddCompanion adds a companion name. Blank names are ignored and exact
// duplicates rejected.
func (c *Controller) AddCompanion(name string) error {
	return c.addUnique(&c.form.Companions, name, "伙伴已存在")
}

// RemoveCompanion removes the companion at index i.
func (c *Controller) RemoveCompanion(i int) error {
	return c.removeAt(&c.form.Companions, i, "companion")
}

// AddTag adds a tag. Blank tags are ignored and exact duplicates rejected.
func (c *Controller) AddTag(tag string) error {
	return c.addUnique(&c.form.Tags, tag, "标签已存在")
}

// RemoveTag removes the tag at index i.
func (c *Controller) RemoveTag(i int) error {
	return c.removeAt(&c.form.Tags, i, "tag")
}

func (c *Controller) addUnique(list *[]string, value, dupMsg string) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if slices.Contains(*list, value) {
		c.notify.Toast(dupMsg)
		return fmt.Errorf("%q: %w", value, ErrDuplicate)
	}
	_ = c.beginEdit()
	*list = append(*list, value)
	return nil
}

func (c *Controller) removeAt(list *[]string, i int, what string) error {
	if !c.state.editable() {
		return ErrNotReady
	}
	if i < 0 || i >= len(*list) {
		return fmt.Errorf("%s index %d: %w", what, i, ErrInvalidInput)
	}
	_ = c.beginEdit()
	*list = slices.Delete(*list, i, i+1)
	return nil
}
