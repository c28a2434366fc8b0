package achievement

// DefaultDefinitions returns the built-in achievement table.
func DefaultDefinitions() []Definition {
	return []Definition{
		// Skill
		{"first_lesson", CategorySkill, "First Stroke", "Complete your first lesson", "icon/lesson-1", 1, 50, RarityCommon},
		{"lesson_10", CategorySkill, "Dedicated Student", "Complete 10 lessons", "icon/lesson-10", 10, 200, RarityRare},
		{"lesson_50", CategorySkill, "Scholar", "Complete 50 lessons", "icon/lesson-50", 50, 750, RarityEpic},

		// Creativity
		{"first_artwork", CategoryCreativity, "Blank Canvas No More", "Create your first artwork", "icon/art-1", 1, 50, RarityCommon},
		{"artwork_10", CategoryCreativity, "Prolific", "Create 10 artworks", "icon/art-10", 10, 250, RarityRare},
		{"artwork_100", CategoryCreativity, "Gallery Owner", "Create 100 artworks", "icon/art-100", 100, 1500, RarityLegendary},

		// Social
		{"first_share", CategorySocial, "Show and Tell", "Share an artwork", "icon/share-1", 1, 30, RarityCommon},
		{"share_25", CategorySocial, "Influencer", "Share 25 artworks", "icon/share-25", 25, 400, RarityEpic},

		// Milestone
		{"first_challenge_win", CategoryMilestone, "Champion", "Win a challenge", "icon/win-1", 1, 150, RarityRare},
		{"challenge_wins_10", CategoryMilestone, "Undefeated", "Win 10 challenges", "icon/win-10", 10, 1000, RarityLegendary},

		// Streak
		{"streak_7", CategoryStreak, "Week on Fire", "7 days in a row", "icon/streak-7", 7, 100, RarityRare},
		{"streak_30", CategoryStreak, "Iron Will", "30 days in a row", "icon/streak-30", 30, 500, RarityEpic},
		{"streak_100", CategoryStreak, "Unstoppable", "100 days in a row", "icon/streak-100", 100, 2000, RarityLegendary},
	}
}

// DefaultCatalog returns a sealed catalog of the built-in achievements.
func DefaultCatalog() *Catalog {
	return MustCatalog(DefaultDefinitions()...).Seal()
}
