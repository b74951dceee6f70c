package domain

import "partner-workspace/internal/models"

// Snapshot is one consistent view of every cached collection. It is never
// mutated after publication; selectors on it are pure.
type Snapshot struct {
	Users          Collection[models.User]
	Companies      Collection[models.CompanyProfile]
	Partners       Collection[models.PartnerProfile]
	Applications   Collection[models.Application]
	Collaborations Collection[models.Collaboration]
	Notifications  Collection[models.Notification]

	// profile id -> owning user id
	owners map[string]string
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Users:          newCollection[models.User](nil),
		Companies:      newCollection[models.CompanyProfile](nil),
		Partners:       newCollection[models.PartnerProfile](nil),
		Applications:   newCollection[models.Application](nil),
		Collaborations: newCollection[models.Collaboration](nil),
		Notifications:  newCollection[models.Notification](nil),
		owners:         map[string]string{},
	}
}

func buildOwners(users []models.User) map[string]string {
	owners := make(map[string]string, len(users))
	for _, u := range users {
		if u.ProfileID != "" {
			owners[u.ProfileID] = u.ID
		}
	}
	return owners
}

// withUser returns a copy of owners reflecting that prev became next.
func withUser(owners map[string]string, prev *models.User, next models.User) map[string]string {
	out := make(map[string]string, len(owners)+1)
	for k, v := range owners {
		out[k] = v
	}
	if prev != nil && prev.ProfileID != "" && out[prev.ProfileID] == prev.ID {
		delete(out, prev.ProfileID)
	}
	if next.ProfileID != "" {
		out[next.ProfileID] = next.ID
	}
	return out
}

func (s *Snapshot) User(id string) (models.User, bool) { return s.Users.Get(id) }

func (s *Snapshot) Company(id string) (models.CompanyProfile, bool) { return s.Companies.Get(id) }

func (s *Snapshot) Partner(id string) (models.PartnerProfile, bool) { return s.Partners.Get(id) }

func (s *Snapshot) Application(id string) (models.Application, bool) { return s.Applications.Get(id) }

func (s *Snapshot) Collaboration(id string) (models.Collaboration, bool) {
	return s.Collaborations.Get(id)
}

func (s *Snapshot) Notification(id string) (models.Notification, bool) {
	return s.Notifications.Get(id)
}

// OwnerOf resolves the user owning a company or partner profile.
func (s *Snapshot) OwnerOf(profileID string) (models.User, bool) {
	userID, ok := s.owners[profileID]
	if !ok {
		return models.User{}, false
	}
	return s.Users.Get(userID)
}

// ApplicationFor returns the application for the ordered (company, partner) pair.
func (s *Snapshot) ApplicationFor(companyID, partnerID string) (models.Application, bool) {
	for _, a := range s.Applications.items {
		if a.CompanyID == companyID && a.PartnerID == partnerID {
			return a, true
		}
	}
	return models.Application{}, false
}

func (s *Snapshot) ApplicationsForCompany(companyID string) []models.Application {
	return ListWhere(s.Applications, func(a models.Application) bool { return a.CompanyID == companyID })
}

func (s *Snapshot) ApplicationsForPartner(partnerID string) []models.Application {
	return ListWhere(s.Applications, func(a models.Application) bool { return a.PartnerID == partnerID })
}

func (s *Snapshot) CollaborationForApplication(applicationID string) (models.Collaboration, bool) {
	for _, c := range s.Collaborations.items {
		if c.ApplicationID == applicationID {
			return c, true
		}
	}
	return models.Collaboration{}, false
}

// CollaborationsForProfile lists workspaces where profileID is either side.
func (s *Snapshot) CollaborationsForProfile(profileID string) []models.Collaboration {
	return ListWhere(s.Collaborations, func(c models.Collaboration) bool {
		return c.CompanyID == profileID || c.PartnerID == profileID
	})
}

func (s *Snapshot) NotificationsFor(userID string) []models.Notification {
	return ListWhere(s.Notifications, func(n models.Notification) bool { return n.UserID == userID })
}

func (s *Snapshot) UnreadNotifications(userID string) []models.Notification {
	return ListWhere(s.Notifications, func(n models.Notification) bool { return n.UserID == userID && !n.Read })
}

func (s *Snapshot) CountByRole(role models.Role) int {
	return len(ListWhere(s.Users, func(u models.User) bool { return u.Role == role }))
}
